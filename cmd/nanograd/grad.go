package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/nanograd/ml/expr"
	"github.com/pkg/errors"
)

// parseVars parses the "name=value" arguments of the grad mode.
func parseVars(args []string) (map[string]any, error) {
	vars := make(map[string]any, len(args))
	for _, arg := range args {
		name, valueStr, found := strings.Cut(arg, "=")
		if !found || name == "" {
			return nil, errors.Errorf("invalid variable %q, it should be given as \"<name>=<value>\"", arg)
		}
		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for variable %q", name)
		}
		vars[name] = value
	}
	return vars, nil
}

// grad evaluates the expression args[0] with the variables given in the remaining args, and writes to out
// its value and the gradient with respect to every named value.
func grad(out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("grad requires an expression, see 'nanograd -help'")
	}
	vars, err := parseVars(args[1:])
	if err != nil {
		return err
	}
	value, gradients, err := expr.Gradients(args[0], vars)
	if err != nil {
		return err
	}

	table := newPlainTable().Headers("Name", "Kind", "Gradient")
	for _, name := range slices.Sorted(maps.Keys(gradients)) {
		kind := "assigned"
		if _, isVar := vars[name]; isVar {
			kind = "variable"
		}
		table.Row(name, kind, strconv.FormatFloat(gradients[name], 'g', -1, 64))
	}
	_, _ = fmt.Fprintf(out, "value = %s\n", strconv.FormatFloat(value, 'g', -1, 64))
	_, err = fmt.Fprintln(out, table.Render())
	return err
}
