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

package graph

import (
	"math"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// This file implements reverse-mode automatic differentiation, using VJPs (Vector Jacobian Product),
// which for scalars are simply the local derivatives times the adjoint.
//
// Conventions:
//
// * root node: the node passed to Backpropagate. We calculate the gradient of the root with respect to
//   every node it depends on.
// * adjoint / v: the gradient of the root with respect to the current node. It is the sum of the
//   contributions of all of the node's consumers.
// * consumers: the nodes that use a node as one of their inputs.
//
// The nodes are visited in reverse topological order, so by the time a node's VJP is called, all its
// consumers have already contributed to its gradient, and it is final.

// VJP returns the contribution of a node's gradient to each of its inputs.
//
// Args:
//
//	node: node for which we are calculating the backward gradient. Its inputs are given by node.Inputs().
//	v: gradient of the root with respect to node, also known as the adjoint.
//
// Returns:
//
//	One value per input (len(node.Inputs())): the gradient of the root flowing through node into that input.
//	It is added to the input's gradient by Backpropagate.
type VJP func(node *Node, v float64) []float64

// VJPRegistration maps each node type to its implementation of VJP. OpTypeCustom nodes use
// the VJP given to WithCustomGradient instead.
var VJPRegistration = map[OpType]VJP{
	OpTypeConst:     nilVJP,
	OpTypeParameter: nilVJP,
	OpTypeAdd:       addVJP,
	OpTypeMul:       mulVJP,
	OpTypePow:       powVJP,
	OpTypeRelu:      reluVJP,
	OpTypeExp:       expVJP,
	OpTypeLog:       logVJP,
	OpTypeTanh:      tanhVJP,
}

// visitState of a node during the depth-first traversal.
type visitState uint8

const (
	notVisited visitState = iota
	inProgress            // Node is in the work stack: its inputs are being visited.
	visited
)

// traversalFrame is one entry of the explicit work stack of TopologicalOrder.
type traversalFrame struct {
	node      *Node
	nextInput int
}

// TopologicalOrder returns all nodes root depends on (including root), each exactly once,
// with inputs always listed before the nodes that consume them. Root is always the last one.
//
// It is a depth-first post-order traversal, visiting the inputs in order, and using an explicit
// stack, so the depth of the graph is not limited by the Go stack.
//
// Nodes are identified by pointer: different nodes with the same value are different entries.
// If a cycle is found (which cannot be built with the ops in this package) it panics with a
// GraphIntegrityError.
func TopologicalOrder(root *Node) []*Node {
	root.AssertValid()
	var order []*Node
	state := make(map[*Node]visitState)
	stack := []traversalFrame{{node: root}}
	state[root] = inProgress
	for len(stack) > 0 {
		frame := &stack[len(stack)-1]
		node := frame.node
		if frame.nextInput >= node.numInputs {
			// All inputs visited, node can be appended.
			state[node] = visited
			order = append(order, node)
			stack = stack[:len(stack)-1]
			continue
		}
		input := node.inputs[frame.nextInput]
		frame.nextInput++
		if input == nil {
			throwGraphIntegrity(node, "input #%d is nil", frame.nextInput-1)
		}
		switch state[input] {
		case visited:
			continue
		case inProgress:
			throwGraphIntegrity(node, "cycle detected: input #%d (%s) is also a consumer of the node",
				frame.nextInput-1, input)
		}
		state[input] = inProgress
		stack = append(stack, traversalFrame{node: input})
	}
	return order
}

// Backpropagate calculates the gradient of root with respect to every node it depends on, and
// accumulates it in the node's gradient, see Node.Gradient.
//
// The gradient of root is set to 1, but no other gradient is reset: if nodes took part in previous passes,
// the new gradients are added to the previous values. Use ZeroGradients between passes.
//
// Each node's VJP is called exactly once, after all of its consumers' VJPs were called.
//
// It panics with a GraphIntegrityError if the graph is inconsistent.
func Backpropagate(root *Node) {
	order := TopologicalOrder(root)
	if klog.V(2).Enabled() {
		klog.Infof("Backpropagate(%s): %d nodes", root, len(order))
	}
	root.gradient = 1
	for ii := len(order) - 1; ii >= 0; ii-- {
		node := order[ii]
		vjpFn := node.customVJP
		if vjpFn == nil {
			var ok bool
			vjpFn, ok = VJPRegistration[node.op]
			if !ok {
				exceptions.Panicf("graph has node %s, for which no gradient is defined, cannot backpropagate", node)
			}
		}
		inputsVJPs := vjpFn(node, node.gradient)
		if len(inputsVJPs) != node.numInputs {
			throwGraphIntegrity(node, "VJP returned %d gradients, but node has %d inputs", len(inputsVJPs), node.numInputs)
		}
		for inputIdx, vjp := range inputsVJPs {
			node.inputs[inputIdx].gradient += vjp
		}
		if klog.V(3).Enabled() {
			klog.Infof("\t%s -> %v", node, inputsVJPs)
		}
	}
}

// Gradients backpropagates from root and returns the gradients of each of the given nodes.
// Same as Backpropagate, gradients are accumulated, not reset.
func Gradients(root *Node, nodes ...*Node) []float64 {
	Backpropagate(root)
	grads := make([]float64, len(nodes))
	for ii, node := range nodes {
		grads[ii] = node.Gradient()
	}
	return grads
}

// nilVJP returns no gradient, for nodes without inputs.
func nilVJP(_ *Node, _ float64) []float64 {
	return nil
}

func addVJP(_ *Node, v float64) []float64 {
	return []float64{v, v}
}

func mulVJP(node *Node, v float64) []float64 {
	a, b := node.inputs[0], node.inputs[1]
	return []float64{b.value * v, a.value * v}
}

func powVJP(node *Node, v float64) []float64 {
	a, p := node.inputs[0], node.exponent
	return []float64{p * math.Pow(a.value, p-1) * v}
}

// reluVJP uses the sign of the output: at 0 the gradient is 0.
func reluVJP(node *Node, v float64) []float64 {
	if node.value > 0 {
		return []float64{v}
	}
	return []float64{0}
}

func expVJP(node *Node, v float64) []float64 {
	return []float64{node.value * v}
}

func logVJP(node *Node, v float64) []float64 {
	return []float64{v / node.inputs[0].value}
}

func tanhVJP(node *Node, v float64) []float64 {
	return []float64{(1 - node.value*node.value) * v}
}
