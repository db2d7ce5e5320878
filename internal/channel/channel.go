package channel

import (
	"fmt"
	"math"
)

// EncodingError reports a schema mismatch or a corrupt, undecodable payload.
type EncodingError struct {
	msg string
	err error
}

func NewEncodingError(format string, args ...any) *EncodingError {
	return &EncodingError{msg: fmt.Sprintf(format, args...)}
}

func wrapEncodingError(err error, format string, args ...any) *EncodingError {
	return &EncodingError{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *EncodingError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("channel: %s: %s", e.msg, e.err)
	}
	return "channel: " + e.msg
}

func (e *EncodingError) Unwrap() error {
	return e.err
}

// Channel is an ordered sequence of samples of one kind stored column-major.
// Values[i] holds the column of Schema.Fields[i+1].
type Channel struct {
	Name   string
	Schema Schema
	T      []int64
	Values [][]float64
}

// New returns an empty channel with preallocated columns.
func New(name string, schema Schema, capacity int) *Channel {
	values := make([][]float64, len(schema.Fields)-1)
	for i := range values {
		values[i] = make([]float64, 0, capacity)
	}
	return &Channel{
		Name:   name,
		Schema: schema,
		T:      make([]int64, 0, capacity),
		Values: values,
	}
}

// Append adds one sample. The number of values must match the schema.
func (c *Channel) Append(t int64, values ...float64) {
	c.T = append(c.T, t)
	for i := range c.Values {
		c.Values[i] = append(c.Values[i], values[i])
	}
}

// Len returns the number of samples.
func (c *Channel) Len() int {
	return len(c.T)
}

// Column returns the named value column, or nil.
func (c *Channel) Column(name string) []float64 {
	i := c.Schema.Index(name)
	if i < 0 || i >= len(c.Values) {
		return nil
	}
	return c.Values[i]
}

// Span returns the first and last timestamps. Both are zero for an empty
// channel.
func (c *Channel) Span() (first, last int64) {
	if len(c.T) == 0 {
		return 0, 0
	}
	return c.T[0], c.T[len(c.T)-1]
}

// Validate checks the schema, column lengths, value finiteness and the
// strictly increasing timestamp invariant.
func (c *Channel) Validate() error {
	if c.Name == "" || len(c.Name) > 255 {
		return NewEncodingError("invalid channel name %q", c.Name)
	}
	if err := c.Schema.Validate(); err != nil {
		return err
	}
	if len(c.Values) != len(c.Schema.Fields)-1 {
		return NewEncodingError("channel %q: %d value columns for %d value fields", c.Name, len(c.Values), len(c.Schema.Fields)-1)
	}
	if uint64(len(c.T)) > math.MaxUint32 {
		return NewEncodingError("channel %q: too many samples (%d)", c.Name, len(c.T))
	}

	for i, col := range c.Values {
		if len(col) != len(c.T) {
			return NewEncodingError("channel %q: column %q has %d values for %d timestamps",
				c.Name, c.Schema.Fields[i+1].Name, len(col), len(c.T))
		}
		for j, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return NewEncodingError("channel %q: column %q sample %d is not finite", c.Name, c.Schema.Fields[i+1].Name, j)
			}
		}
	}

	for i := 1; i < len(c.T); i++ {
		if c.T[i] <= c.T[i-1] {
			return NewEncodingError("channel %q: timestamps not strictly increasing at sample %d (%d <= %d)",
				c.Name, i, c.T[i], c.T[i-1])
		}
	}

	return nil
}
