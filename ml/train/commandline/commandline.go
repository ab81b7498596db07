/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package commandline contains convenience UI training tools for the command line.
package commandline

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/pkg/errors"
)

// ReportEval writes to out the results of evaluating the datasets using trainer.Eval, as a table
// with one row per dataset and one column per evaluation metric.
func ReportEval(out io.Writer, trainer *train.Trainer, datasets ...train.Dataset) error {
	evalMetrics := trainer.EvalMetrics()
	headers := make([]string, 0, len(evalMetrics)+1)
	headers = append(headers, "Dataset")
	for _, metric := range evalMetrics {
		headers = append(headers, fmt.Sprintf("%s (%s)", metric.Name(), metric.ShortName()))
	}
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return normalStyle
			}
			return rightAlignedStyle
		})
	for _, ds := range datasets {
		metricsValues, err := trainer.Eval(ds)
		if err != nil {
			return errors.WithMessagef(err, "ReportEval(%q)", ds.Name())
		}
		row := make([]string, 0, len(metricsValues)+1)
		row = append(row, ds.Name())
		for metricIdx, metric := range evalMetrics {
			row = append(row, metric.PrettyPrint(metricsValues[metricIdx]))
		}
		table.Row(row...)
	}
	_, err := fmt.Fprintln(out, table.String())
	return err
}
