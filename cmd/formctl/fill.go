package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/GyroZepelix/mithril-forms/internal/datapath"
	"github.com/GyroZepelix/mithril-forms/internal/form"
	"github.com/GyroZepelix/mithril-forms/internal/formstate"
)

var errAborted = errors.New("aborted")

// prompter asks the user for one value. surveyPrompter drives a terminal;
// tests substitute a scripted one.
type prompter interface {
	Input(message, help, def string) (string, error)
	Password(message, help string) (string, error)
	Multiline(message, help string) (string, error)
	Confirm(message, help string, def bool) (bool, error)
	Select(message, help string, options []string) (int, error)
	MultiSelect(message, help string, options []string) ([]int, error)
}

func runFill(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs, flags := newDataFlagSet("fill", "Prompt for every visible field, then print the finalized submission.")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	f, data, config, err := flags.inputs(stdin)
	if err != nil {
		return err
	}

	fl := &filler{ctx: ctx, prompt: surveyPrompter{}, out: os.Stderr, opts: flags.options()}
	data, err = fl.level(f.Schema(), data, config)
	if err != nil {
		return err
	}

	res := formstate.Finalize(f.Schema(), data, config, flags.options())
	if err := writeJSON(stdout, res); err != nil {
		return err
	}
	if !res.Success {
		return errInvalid
	}
	return nil
}

// filler walks a schema level by level. Field state is recomputed after
// every answer so rules can show, hide or disable the fields that follow.
type filler struct {
	ctx    context.Context
	prompt prompter
	out    io.Writer
	opts   formstate.Options
}

func (fl *filler) level(s *form.Schema, data, config map[string]any) (map[string]any, error) {
	if data == nil {
		data = map[string]any{}
	}
	for _, fd := range s.Fields {
		if err := fl.ctx.Err(); err != nil {
			return nil, err
		}
		if s.Excludes(fd.Key) || fd.Template != "" || fd.Widget.IsUpload() || fd.Widget == form.WidgetHidden {
			continue
		}

		for {
			st := formstate.Compute(s, data, config, fl.opts).Fields[fd.Key]
			if st == nil || !st.IsVisible || st.IsDisabled {
				break
			}

			value, set, err := fl.ask(fd, st, data)
			if err != nil {
				return nil, err
			}
			if set {
				data = setKey(data, fd.Key, value)
			}

			st = formstate.Compute(s, data, config, fl.opts).Fields[fd.Key]
			if st == nil || st.Error == nil {
				break
			}
			fmt.Fprintf(fl.out, "  %s\n", *st.Error)
		}
	}
	return data, nil
}

func (fl *filler) ask(fd *form.Field, st *formstate.FieldState, data map[string]any) (any, bool, error) {
	msg := fd.Label
	if st.IsRequired {
		msg += " *"
	}
	help := fd.Placeholder

	switch {
	case fd.Widget.IsRepeater():
		return fl.askItems(fd, data)
	case fd.IsContainer():
		current, _ := datapath.Lookup(data, fd.Key)
		fmt.Fprintf(fl.out, "%s\n", fd.Label)
		obj, err := fl.level(fd.ItemSchema, asMap(current), nil)
		return obj, err == nil, err
	case fd.Widget.IsBoolean():
		def, _ := st.Value.(bool)
		v, err := fl.prompt.Confirm(msg, help, def)
		return v, err == nil, err
	case len(fd.Options) > 0 && fd.Widget.IsList():
		labels := optionLabels(fd.Options)
		idx, err := fl.prompt.MultiSelect(msg, help, labels)
		if err != nil {
			return nil, false, err
		}
		values := make([]any, 0, len(idx))
		for _, i := range idx {
			values = append(values, fd.Options[i].Value)
		}
		return values, true, nil
	case len(fd.Options) > 0:
		idx, err := fl.prompt.Select(msg, help, optionLabels(fd.Options))
		if err != nil || idx < 0 {
			return nil, false, err
		}
		return fd.Options[idx].Value, true, nil
	case fd.Widget.IsList():
		raw, err := fl.prompt.Input(msg+" (comma separated)", help, "")
		if err != nil {
			return nil, false, err
		}
		var values []any
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
		return values, values != nil, nil
	case fd.Widget == form.WidgetPassword:
		v, err := fl.prompt.Password(msg, help)
		return v, err == nil && v != "", err
	case fd.Widget == form.WidgetTextarea || fd.Widget.IsRichText():
		v, err := fl.prompt.Multiline(msg, help)
		return v, err == nil && v != "", err
	}

	def := ""
	if st.Value != nil {
		def = fmt.Sprint(st.Value)
	}
	raw, err := fl.prompt.Input(msg, help, def)
	if err != nil || raw == "" {
		return nil, false, err
	}
	if fd.ValueType() == "number" || fd.ValueType() == "integer" || fd.ValueType() == "float" {
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fmt.Fprintf(fl.out, "  %q is not a number\n", raw)
			return nil, false, nil
		}
		return n, true, nil
	}
	return raw, true, nil
}

// askItems collects repeater items until the user declines another one.
func (fl *filler) askItems(fd *form.Field, data map[string]any) (any, bool, error) {
	current, _ := datapath.Lookup(data, fd.Key)
	items, _ := current.([]any)
	for {
		more, err := fl.prompt.Confirm(fmt.Sprintf("Add an item to %s? (%d so far)", fd.Label, len(items)), "", false)
		if err != nil {
			return nil, false, err
		}
		if !more {
			return items, true, nil
		}
		item, err := fl.level(fd.ItemSchema, nil, nil)
		if err != nil {
			return nil, false, err
		}
		items = append(items, item)
	}
}

func setKey(data map[string]any, key string, value any) map[string]any {
	if m, ok := datapath.Set(data, key, value).(map[string]any); ok {
		return m
	}
	return data
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func optionLabels(opts []form.Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Label
		if out[i] == "" {
			out[i] = fmt.Sprint(o.Value)
		}
	}
	return out
}

// surveyPrompter asks on the controlling terminal.
type surveyPrompter struct{}

func (surveyPrompter) Input(message, help, def string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Input{Message: message, Help: help, Default: def}, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Password(message, help string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Password{Message: message, Help: help}, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Multiline(message, help string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Multiline{Message: message, Help: help}, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Confirm(message, help string, def bool) (bool, error) {
	var out bool
	err := survey.AskOne(&survey.Confirm{Message: message, Help: help, Default: def}, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) Select(message, help string, options []string) (int, error) {
	var out int
	err := survey.AskOne(&survey.Select{Message: message, Help: help, Options: options}, &out)
	return out, translateSurveyErr(err)
}

func (surveyPrompter) MultiSelect(message, help string, options []string) ([]int, error) {
	var out []int
	err := survey.AskOne(&survey.MultiSelect{Message: message, Help: help, Options: options}, &out)
	return out, translateSurveyErr(err)
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errAborted
	}
	return err
}

