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

// Package nanlogger collects `graph.Node` objects to monitor for
// `NaN` ("not-a-number") or `Inf` (infinity) values or gradients.
//
// Nodes are selected with Trace (checked once, e.g. nodes of one training step) or Watch
// (checked at every Check, e.g. the model parameters). Check reports the first (oldest)
// node with a non-finite value or gradient to the handler.
//
// The report includes the stack trace where the node was traced and an optional user set scope.
//
// Example:
//
//	nanLogger := nanlogger.New()
//	nanLogger.Watch(model.Parameters()...)
//	modelFn := func(inputs []*Node) *Node {
//		nanLogger.PushScope("mlp")
//		defer nanLogger.PopScope()
//		prediction := model.Call1(inputs)
//		nanLogger.Trace(prediction)
//		return prediction
//	}
//	…
//	loop := train.NewLoop(trainer)
//	nanLogger.AttachToLoop(loop)
package nanlogger

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/nanograd/graph"
	"github.com/gomlx/nanograd/ml/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LoopHookName is the name of the hook registered by AttachToLoop.
const LoopHookName = "nanograd.graph.nanlogger"

// NanLogger monitors selected nodes for NaN (and Inf) values or gradients.
// You manually select the nodes you want to monitor, and it saves the stack where it was called
// along with user provided scope information.
//
// A nil NanLogger is valid, and all its methods are no-ops.
//
// See example in package documentation.
type NanLogger struct {
	handler HandlerFn

	// traces are checked once, watched nodes at every Check.
	traces, watched []*Trace

	currentScope []string
}

// Trace information of a node that is set to monitor.
// This is what is reported when a `NaN` is found.
type Trace struct {
	Node *graph.Node

	// StackTrace of where the monitored node was traced, stored as an error that can be printed.
	StackTrace error

	// Scope saved when the node was traced.
	Scope []string
}

// HandlerFn is the type of function to handle NaN traces. value is the offending value,
// and isGradient tells whether it was the node's gradient (as opposed to its value).
//
// A returned error is returned by Check.
type HandlerFn func(info *Trace, value float64, isGradient bool) error

// New creates a NanLogger that can be used to debug where NaN happen in graphs.
// See NanLogger for details.
func New() *NanLogger {
	return &NanLogger{handler: DefaultHandler}
}

// WithHandler sets the function called when a `NaN` is observed. The default is
// DefaultHandler, which returns an error describing the node.
//
// It returns the NanLogger, so calls can be cascaded.
func (l *NanLogger) WithHandler(handler HandlerFn) *NanLogger {
	if l == nil {
		return nil
	}
	l.handler = handler
	return l
}

func (l *NanLogger) newTrace(node *graph.Node, scope []string) *Trace {
	trace := &Trace{
		Node:       node,
		StackTrace: errors.Errorf("Stack-trace"),
	}
	if len(scope) == 0 {
		trace.Scope = slices.Clone(l.currentScope)
	} else {
		trace.Scope = slices.Clone(scope)
	}
	return trace
}

// Trace the given node until the next Check.
//
// A user-provided scope can be given. If none is given, then it uses the current NanLogger scope.
// These are two different methods of providing scope, both optional -- it's also fine not to provide any.
func (l *NanLogger) Trace(node *graph.Node, scope ...string) {
	if l == nil || node == nil {
		return
	}
	l.traces = append(l.traces, l.newTrace(node, scope))
}

// Watch the given nodes (typically the model parameters) at every Check, using the current scope.
func (l *NanLogger) Watch(nodes ...*graph.Node) {
	if l == nil {
		return
	}
	for _, node := range nodes {
		if node != nil {
			l.watched = append(l.watched, l.newTrace(node, nil))
		}
	}
}

// PushScope to current scope stack.
// These values are added by default to any new Trace.
func (l *NanLogger) PushScope(scope string) {
	if l == nil {
		return
	}
	l.currentScope = append(l.currentScope, scope)
}

// PopScope removes the last entry in the current scope stack.
func (l *NanLogger) PopScope() {
	if l == nil {
		return
	}
	if len(l.currentScope) == 0 {
		klog.Warningf("NanLogger.PopScope() called on an already empty scope stack!?")
		return
	}
	l.currentScope = l.currentScope[:len(l.currentScope)-1]
}

// NumTraced returns the number of nodes that will be checked by the next Check.
func (l *NanLogger) NumTraced() int {
	if l == nil {
		return 0
	}
	return len(l.traces) + len(l.watched)
}

// Check all traced and watched nodes for NaN or Inf values and gradients, and calls the handler with
// the first one observed: the one with the lowest node id, since NaN values spread forward in the graph.
// Values are preferred over gradients, which spread backwards.
//
// The traced nodes are then cleared, watched nodes are kept.
func (l *NanLogger) Check() error {
	if l == nil {
		return nil
	}
	defer func() { l.traces = l.traces[:0] }()

	var first *Trace
	var firstValue float64
	var firstIsGradient bool
	for _, trace := range slices.Concat(l.watched, l.traces) {
		value, isGradient := trace.Node.Value(), false
		if isFinite(value) {
			value, isGradient = trace.Node.Gradient(), true
			if isFinite(value) {
				continue
			}
		}
		better := first == nil ||
			(firstIsGradient && !isGradient) ||
			(firstIsGradient == isGradient && trace.Node.Id() < first.Node.Id())
		if better {
			first, firstValue, firstIsGradient = trace, value, isGradient
		}
	}
	if first == nil {
		return nil
	}
	return l.handler(first, firstValue, firstIsGradient)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AttachToLoop checks the traced nodes after every training step of the loop, interrupting the
// training if the handler returns an error.
func (l *NanLogger) AttachToLoop(loop *train.Loop) {
	if l == nil {
		return
	}
	loop.OnStep(LoopHookName, 0, func(_ *train.Loop, _ []float64) error {
		return l.Check()
	})
}

// DefaultHandler when a `NaN` or `Inf` is observed: it returns an error with all the information
// on the node, including the stack-trace of where it was traced.
func DefaultHandler(info *Trace, value float64, isGradient bool) error {
	var scopeTxt string
	if len(info.Scope) > 0 {
		scopeTxt = fmt.Sprintf("Scope:\n\t%s\n", strings.Join(info.Scope, "\n\t"))
	}
	what := "value"
	if isGradient {
		what = "gradient"
	}
	return errors.Errorf("NanLogger observed a %s %f in node %s:\n%sStack-trace of node:\n%+v\n",
		what, value, info.Node, scopeTxt, info.StackTrace)
}
