package simulation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

// waitDelay bounds how long a killed engine may keep its pipes open.
const waitDelay = 2 * time.Second

// request is written to the engine's stdin as a single JSON document.
type request struct {
	Touch        wireChannel `json:"touch"`
	Profile      Profile     `json:"profile"`
	SampleRateHz float64     `json:"sample_rate_hz"`
}

// response is read from the engine's stdout.
type response struct {
	Channels []wireChannel `json:"channels"`
}

// wireChannel is a channel in column form: Fields names the value columns in
// order, T holds microsecond timestamps.
type wireChannel struct {
	Name   string      `json:"name"`
	Fields []string    `json:"fields"`
	T      []int64     `json:"t"`
	Values [][]float64 `json:"values"`
}

func toWire(c *channel.Channel) wireChannel {
	fields := make([]string, 0, len(c.Schema.Fields)-1)
	for _, f := range c.Schema.Fields[1:] {
		fields = append(fields, f.Name)
	}
	return wireChannel{Name: c.Name, Fields: fields, T: c.T, Values: c.Values}
}

func (w wireChannel) channel() *channel.Channel {
	return &channel.Channel{
		Name:   w.Name,
		Schema: channel.NewSchema(channel.Float64, w.Fields...),
		T:      w.T,
		Values: w.Values,
	}
}

// External runs a third-party physics engine as a child process. The request
// goes to stdin, the response is read from stdout, and every stderr line is
// logged as a warning.
type External struct {
	binPath string
	args    []string
	logger  *slog.Logger
}

func NewExternal(binPath string, args []string, opts ...Option) *External {
	o := buildOptions(opts)
	return &External{
		binPath: binPath,
		args:    args,
		logger:  o.logger.With(slog.String("engine", binPath)),
	}
}

func (s *External) Generate(ctx context.Context, touch *channel.Channel, profile Profile, rate float64) ([]*channel.Channel, error) {
	req, err := json.Marshal(request{Touch: toWire(touch), Profile: profile, SampleRateHz: rate})
	if err != nil {
		return nil, fmt.Errorf("simulation: encoding request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.binPath, s.args...)
	cmd.Stdin = bytes.NewReader(req)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err = cmd.Run()
	s.logStderr(&stderr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("simulation: engine interrupted: %w", ctxErr)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, NewRuntimeError("simulation: error starting engine", err)
		}
		return nil, NewRuntimeError("simulation: engine exited with error", err)
	}

	var resp response
	dec := json.NewDecoder(&stdout)
	dec.DisallowUnknownFields()
	if err = dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("simulation: decoding engine response: %w", err)
	}

	out := make([]*channel.Channel, len(resp.Channels))
	for i, w := range resp.Channels {
		out[i] = w.channel()
	}
	if err = validateOutput(out); err != nil {
		return nil, err
	}

	s.logger.Debug("external simulation complete",
		slog.Int("channels", len(out)),
		slog.Duration("elapsed", time.Since(started)))
	return out, nil
}

func (s *External) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.logger.Warn("engine >> " + line)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("error reading engine stderr", slog.Any("error", err))
	}
}
