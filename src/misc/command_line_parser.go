package misc

import (
	"fmt"
	"strconv"
	"strings"
)

type OptionKind int

const (
	INT OptionKind = iota
	STRING
	FLOAT
)

type option struct {
	kind          OptionKind
	name          string
	default_value string
	help_msg      string
	value         string
	is_set        bool
}

// CommandLineParser accepts options of the form --name value. Unknown
// arguments cause a panic so that typos in launch scripts surface early.
type CommandLineParser struct {
	options      map[string]*option
	option_order []string
	positional   []string
	program_name string
}

func (this *CommandLineParser) Init() {
	this.options = make(map[string]*option)
	this.option_order = make([]string, 0)
	this.positional = make([]string, 0)

	this.AddOption(INT, "help", "0", "print the help message and exit")
}

func (this *CommandLineParser) AddOption(kind OptionKind, name string, default_value string, help_msg string) {
	if _, exists := this.options[name]; exists {
		err := fmt.Errorf("option %s is already registered", name)
		panic(err)
	}

	this.options[name] = &option{
		kind:          kind,
		name:          name,
		default_value: default_value,
		help_msg:      help_msg,
		value:         default_value,
	}
	this.option_order = append(this.option_order, name)
}

func (this *CommandLineParser) Parse(args []string) {
	if len(args) == 0 {
		return
	}

	this.program_name = args[0]

	i := 1
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			this.positional = append(this.positional, arg)
			i++
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		opt, exists := this.options[name]
		if !exists {
			err := fmt.Errorf("unknown option --%s", name)
			panic(err)
		}

		if name == "help" {
			opt.value = "1"
			opt.is_set = true
			i++
			continue
		}

		if i+1 >= len(args) {
			err := fmt.Errorf("option --%s requires a value", name)
			panic(err)
		}

		opt.value = args[i+1]
		opt.is_set = true
		i += 2
	}
}

func (this *CommandLineParser) IsArgSet(name string) bool {
	opt, exists := this.options[name]
	if !exists {
		return false
	}
	return opt.is_set
}

func (this *CommandLineParser) IntParameter(name string) int64 {
	opt, exists := this.options[name]
	if !exists {
		err := fmt.Errorf("option %s is not registered", name)
		panic(err)
	}
	if opt.kind != INT {
		err := fmt.Errorf("option %s is not an int option", name)
		panic(err)
	}

	value, parse_err := strconv.ParseInt(opt.value, 10, 64)
	if parse_err != nil {
		panic(parse_err)
	}
	return value
}

func (this *CommandLineParser) FloatParameter(name string) float64 {
	opt, exists := this.options[name]
	if !exists {
		err := fmt.Errorf("option %s is not registered", name)
		panic(err)
	}
	if opt.kind != FLOAT {
		err := fmt.Errorf("option %s is not a float option", name)
		panic(err)
	}

	value, parse_err := strconv.ParseFloat(opt.value, 64)
	if parse_err != nil {
		panic(parse_err)
	}
	return value
}

func (this *CommandLineParser) StringParameter(name string) string {
	opt, exists := this.options[name]
	if !exists {
		err := fmt.Errorf("option %s is not registered", name)
		panic(err)
	}
	if opt.kind != STRING {
		err := fmt.Errorf("option %s is not a string option", name)
		panic(err)
	}
	return opt.value
}

func (this *CommandLineParser) StringifyHelpMsgs() string {
	var builder strings.Builder
	for _, name := range this.option_order {
		opt := this.options[name]
		builder.WriteString(fmt.Sprintf("--%s (default: %s): %s\n", opt.name, opt.default_value, opt.help_msg))
	}
	return builder.String()
}

func (this *CommandLineParser) StringifyArgs() string {
	args := make([]string, 0)
	for _, name := range this.option_order {
		opt := this.options[name]
		if opt.is_set {
			args = append(args, fmt.Sprintf("--%s %s", opt.name, opt.value))
		}
	}
	return strings.Join(args, " ")
}

func (this *CommandLineParser) StringifyOptions() string {
	lines := make([]string, 0)
	for _, name := range this.option_order {
		opt := this.options[name]
		lines = append(lines, fmt.Sprintf("%s=%s", opt.name, opt.value))
	}
	return strings.Join(lines, "\n")
}
