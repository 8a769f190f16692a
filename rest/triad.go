// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"context"
	"fmt"
)

// Args is the mapping a deserializer extracts from a request. It is
// merged with the route path parameters before the controller runs.
type Args map[string]any

// DeserializeFunc extracts action arguments from a request.
type DeserializeFunc func(ctx context.Context, req *Request) (Args, error)

// ControllerFunc executes one action with the merged arguments and
// returns the action result to serialize.
type ControllerFunc func(ctx context.Context, req *Request, args Args) (any, error)

// SerializeFunc renders an action result onto a response.
type SerializeFunc func(ctx context.Context, resp *Response, result any) error

// The three dispatch roles share the same calling contract: an action
// name is looked up in a static registry and falls back to the role's
// declared default method when no entry exists. Role values carry no
// per request state and are safe to use across concurrent requests.

// Deserializer is the request parsing role of an action triad.
type Deserializer struct {
	actions  map[string]DeserializeFunc
	fallback DeserializeFunc
}

// NewDeserializer returns a Deserializer with the given default method.
func NewDeserializer(fallback DeserializeFunc) *Deserializer {
	return &Deserializer{
		actions:  make(map[string]DeserializeFunc),
		fallback: fallback,
	}
}

// Action registers a method for the named action and returns the
// receiver for chaining.
func (d *Deserializer) Action(name string, f DeserializeFunc) *Deserializer {
	d.actions[name] = f
	return d
}

func (d *Deserializer) dispatch(action string) DeserializeFunc {
	if f, ok := d.actions[action]; ok {
		return f
	}
	return d.fallback
}

// Controller is the executing role of an action triad.
type Controller struct {
	actions  map[string]ControllerFunc
	fallback ControllerFunc
}

// NewController returns a Controller with the given default method.
func NewController(fallback ControllerFunc) *Controller {
	return &Controller{
		actions:  make(map[string]ControllerFunc),
		fallback: fallback,
	}
}

// Action registers a method for the named action and returns the
// receiver for chaining.
func (c *Controller) Action(name string, f ControllerFunc) *Controller {
	c.actions[name] = f
	return c
}

func (c *Controller) dispatch(action string) ControllerFunc {
	if f, ok := c.actions[action]; ok {
		return f
	}
	return c.fallback
}

// Serializer is the response rendering role of an action triad.
type Serializer struct {
	actions  map[string]SerializeFunc
	fallback SerializeFunc
}

// NewSerializer returns a Serializer with the given default method.
func NewSerializer(fallback SerializeFunc) *Serializer {
	return &Serializer{
		actions:  make(map[string]SerializeFunc),
		fallback: fallback,
	}
}

// Action registers a method for the named action and returns the
// receiver for chaining.
func (s *Serializer) Action(name string, f SerializeFunc) *Serializer {
	s.actions[name] = f
	return s
}

func (s *Serializer) dispatch(action string) SerializeFunc {
	if f, ok := s.actions[action]; ok {
		return f
	}
	return s.fallback
}

// ArgumentError is returned by controller actions when the merged
// arguments do not satisfy the action's signature, e.g. a required
// argument is missing or has the wrong type. The dispatch pipeline
// treats it as a malformed request.
type ArgumentError struct {
	Action string
	Reason string
}

// Error implements the [builtin.error] interface.
func (e ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for action %q: %s", e.Action, e.Reason)
}
