package simulation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/cloud-readers/internal/channel"
)

// diagonal returns a touch channel moving from (0.1, 0.1) to (0.9, 0.9) over
// one second.
func diagonal() *channel.Channel {
	c := channel.New(channel.Touch, channel.TouchSchema, 11)
	for i := 0; i <= 10; i++ {
		f := float64(i) / 10
		c.Append(int64(i)*100_000, 0.1+0.8*f, 0.1+0.8*f, 0.5, 0.4)
	}
	return c
}

func genericProfile(t *testing.T) Profile {
	t.Helper()
	cfg := DefaultConfig()
	p, err := cfg.Lookup("")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestInternalGenerate(t *testing.T) {
	touch := diagonal()
	profile := genericProfile(t)

	out, err := NewInternal(7).Generate(context.Background(), touch, profile, 100)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(out) != 2 || out[0].Name != channel.Acc || out[1].Name != channel.Gyro {
		t.Fatalf("Generate() returned %d channels", len(out))
	}

	first, last := touch.Span()
	for _, c := range out {
		if !c.Schema.Equal(channel.IMUSchema) {
			t.Errorf("%s schema = %v", c.Name, c.Schema)
		}
		if c.Len() != 101 {
			t.Errorf("%s has %d samples, want 101", c.Name, c.Len())
		}
		if s, e := c.Span(); s != first || e > last {
			t.Errorf("%s spans [%d, %d], outside touch [%d, %d]", c.Name, s, e, first, last)
		}
	}

	// constant velocity: acceleration is gravity plus noise only
	z := out[0].Column("z")
	var mean float64
	for _, v := range z {
		mean += v
	}
	mean /= float64(len(z))
	if math.Abs(mean-StandardGravity[2]) > 0.05 {
		t.Errorf("mean acc z = %g, want about %g", mean, StandardGravity[2])
	}
}

func TestInternalDeterministic(t *testing.T) {
	profile := genericProfile(t)

	a, err := NewInternal(42).Generate(context.Background(), diagonal(), profile, 200)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewInternal(42).Generate(context.Background(), diagonal(), profile, 200)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed differs (-a +b):\n%s", diff)
	}

	c, err := NewInternal(43).Generate(context.Background(), diagonal(), profile, 200)
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Equal(a, c) {
		t.Error("different seeds produced identical output")
	}
}

func TestInternalRejects(t *testing.T) {
	profile := genericProfile(t)

	single := channel.New(channel.Touch, channel.TouchSchema, 1)
	single.Append(0, 0.5, 0.5, 0.5, 0.5)

	noXY := channel.New(channel.Touch, channel.NewSchema(channel.Float64, "pressure"), 2)
	noXY.Append(0, 0.5)
	noXY.Append(1, 0.5)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		touch   *channel.Channel
		profile Profile
		rate    float64
	}{
		{"single sample", context.Background(), single, profile, 100},
		{"no x y", context.Background(), noXY, profile, 100},
		{"zero rate", context.Background(), diagonal(), profile, 0},
		{"bad profile", context.Background(), diagonal(), Profile{Name: "flat"}, 100},
		{"cancelled", cancelled, diagonal(), profile, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewInternal(1).Generate(tt.ctx, tt.touch, tt.profile, tt.rate); err == nil {
				t.Error("Generate() error = nil")
			}
		})
	}
}

func TestTimeGrid(t *testing.T) {
	tests := []struct {
		name string
		ts   []int64
		rate float64
		want []int64
	}{
		{"exact", []int64{0, 1_000_000}, 4, []int64{0, 250_000, 500_000, 750_000, 1_000_000}},
		{"stops before end", []int64{100, 700_100}, 4, []int64{100, 250_100, 500_100}},
		{"shorter than a step", []int64{10, 20}, 100, []int64{10, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, timeGrid(tt.ts, tt.rate)); diff != "" {
				t.Errorf("timeGrid() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInterpAndGradient(t *testing.T) {
	ts := []int64{0, 10, 30}
	vs := []float64{0, 1, 5}
	for _, tt := range []struct {
		t    int64
		want float64
	}{{-5, 0}, {0, 0}, {5, 0.5}, {20, 3}, {40, 5}} {
		if got := interp(ts, vs, tt.t); got != tt.want {
			t.Errorf("interp(%d) = %g, want %g", tt.t, got, tt.want)
		}
	}

	got := gradient([]float64{0, 1, 4, 9}, 1)
	if diff := cmp.Diff([]float64{1, 2, 4, 5}, got); diff != "" {
		t.Errorf("gradient() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnwrap(t *testing.T) {
	a := []float64{3, -3, -2.9, 3.1}
	unwrap(a)
	for i := 1; i < len(a); i++ {
		if math.Abs(a[i]-a[i-1]) > math.Pi {
			t.Errorf("jump of %g between %d and %d", a[i]-a[i-1], i-1, i)
		}
	}
	if a[0] != 3 {
		t.Errorf("first angle changed to %g", a[0])
	}
}

func TestConfigLookup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles = map[string]Profile{
		"pixel_4": {WidthMeters: 0.1, HeightMeters: 0.2, Gravity: StandardGravity},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	p, err := cfg.Lookup("pixel_4")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "pixel_4" || p.WidthMeters != 0.1 {
		t.Errorf("configured profile not preferred: %+v", p)
	}

	p, err = cfg.Lookup("ipad_pro")
	if err != nil || p.Name != "ipad_pro" {
		t.Errorf("Lookup(ipad_pro) = %+v, %v", p, err)
	}

	if _, err = cfg.Lookup("nokia_3310"); err == nil {
		t.Error("Lookup() of an unknown profile succeeded")
	}

	if diff := cmp.Diff([]string{"generic", "ipad_pro", "pixel_4"}, BuiltinProfiles()); diff != "" {
		t.Errorf("BuiltinProfiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"engine", func(c *Config) { c.Engine = "quantum" }},
		{"external without command", func(c *Config) { c.Engine = EngineExternal }},
		{"sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"timeout", func(c *Config) { c.Timeout = Duration(-time.Second) }},
		{"external without timeout", func(c *Config) {
			c.Engine, c.Command, c.Timeout = EngineExternal, "sh", 0
		}},
		{"profile", func(c *Config) { c.Profile = "missing" }},
		{"misnamed profile", func(c *Config) {
			c.Profiles = map[string]Profile{"a": {Name: "b", WidthMeters: 1, HeightMeters: 1}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil")
			}
		})
	}
}

func TestMetadata(t *testing.T) {
	acc := channel.New(channel.Acc, channel.IMUSchema, 2)
	acc.Append(0, 1, -3, 0.5)
	acc.Append(10, 0, 0, 0)

	got := Metadata(EngineInternal, genericProfile(t), 200, []*channel.Channel{acc})
	want := map[string]string{
		"simulation.engine":         "internal",
		"simulation.sample_rate_hz": "200",
		"simulation.noise_std":      "0.05",
		"simulation.acc_peak":       "3",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Metadata() mismatch (-want +got):\n%s", diff)
	}
}

type fakeSimulator struct {
	calls int
	run   func(ctx context.Context) ([]*channel.Channel, error)
}

func (f *fakeSimulator) Generate(ctx context.Context, _ *channel.Channel, _ Profile, _ float64) ([]*channel.Channel, error) {
	f.calls++
	return f.run(ctx)
}

func blocking(ctx context.Context) ([]*channel.Channel, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func fixed(name string) func(context.Context) ([]*channel.Channel, error) {
	return func(context.Context) ([]*channel.Channel, error) {
		return []*channel.Channel{channel.New(name, channel.IMUSchema, 0)}, nil
	}
}

func TestFallback(t *testing.T) {
	t.Run("primary succeeds", func(t *testing.T) {
		primary := &fakeSimulator{run: fixed("primary")}
		secondary := &fakeSimulator{run: fixed("secondary")}

		out, err := WithFallback(primary, secondary, time.Second).Generate(context.Background(), diagonal(), Profile{}, 100)
		if err != nil {
			t.Fatal(err)
		}
		if out[0].Name != "primary" || secondary.calls != 0 {
			t.Errorf("got %q, fallback called %d times", out[0].Name, secondary.calls)
		}
	})

	t.Run("primary times out", func(t *testing.T) {
		primary := &fakeSimulator{run: blocking}
		secondary := &fakeSimulator{run: fixed("secondary")}

		out, err := WithFallback(primary, secondary, 20*time.Millisecond).Generate(context.Background(), diagonal(), Profile{}, 100)
		if err != nil {
			t.Fatal(err)
		}
		if out[0].Name != "secondary" || secondary.calls != 1 {
			t.Errorf("got %q, fallback called %d times", out[0].Name, secondary.calls)
		}
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &fakeSimulator{run: func(context.Context) ([]*channel.Channel, error) {
			return nil, NewRuntimeError("boom", nil)
		}}
		secondary := &fakeSimulator{run: fixed("secondary")}

		out, err := WithFallback(primary, secondary, 0).Generate(context.Background(), diagonal(), Profile{}, 100)
		if err != nil {
			t.Fatal(err)
		}
		if out[0].Name != "secondary" {
			t.Errorf("got %q", out[0].Name)
		}
	})

	t.Run("zero timeout still bounds the primary", func(t *testing.T) {
		var deadline time.Time
		primary := &fakeSimulator{run: func(ctx context.Context) ([]*channel.Channel, error) {
			deadline, _ = ctx.Deadline()
			return fixed("primary")(ctx)
		}}
		secondary := &fakeSimulator{run: fixed("secondary")}

		fb := WithFallback(primary, secondary, 0)
		if fb.timeout != DefaultTimeout {
			t.Errorf("timeout = %s, want %s", fb.timeout, DefaultTimeout)
		}
		started := time.Now()
		if _, err := fb.Generate(context.Background(), diagonal(), Profile{}, 100); err != nil {
			t.Fatal(err)
		}
		if deadline.IsZero() || deadline.After(started.Add(DefaultTimeout+time.Second)) {
			t.Errorf("primary deadline = %v, want within %s of the call", deadline, DefaultTimeout)
		}
	})

	t.Run("caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		primary := &fakeSimulator{run: func(ctx context.Context) ([]*channel.Channel, error) {
			cancel()
			return blocking(ctx)
		}}
		secondary := &fakeSimulator{run: fixed("secondary")}

		_, err := WithFallback(primary, secondary, time.Minute).Generate(ctx, diagonal(), Profile{}, 100)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Generate() error = %v, want context.Canceled", err)
		}
		if secondary.calls != 0 {
			t.Errorf("fallback called %d times after cancellation", secondary.calls)
		}
	})
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExternalGenerate(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo "calibrating" >&2
cat <<'EOF'
{"channels": [
  {"name": "acc", "fields": ["x", "y", "z"], "t": [0, 500000, 1000000],
   "values": [[0, 0.1, 0], [0, 0, 0], [-9.8, -9.8, -9.8]]}
]}
EOF
`)

	out, err := NewExternal(script, nil).Generate(context.Background(), diagonal(), genericProfile(t), 2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []*channel.Channel{{
		Name:   channel.Acc,
		Schema: channel.IMUSchema,
		T:      []int64{0, 500_000, 1_000_000},
		Values: [][]float64{{0, 0.1, 0}, {0, 0, 0}, {-9.8, -9.8, -9.8}},
	}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
	}
}

func TestExternalFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		runtime bool
	}{
		{"non-zero exit", "cat > /dev/null\nexit 3\n", true},
		{"garbage", "cat > /dev/null\necho 'not json'\n", false},
		{"unknown field", "cat > /dev/null\necho '{\"channels\": [], \"extra\": 1}'\n", false},
		{"no channels", "cat > /dev/null\necho '{\"channels\": []}'\n", false},
		{"decreasing time", "cat > /dev/null\n" +
			`echo '{"channels": [{"name": "gyro", "fields": ["z"], "t": [5, 1], "values": [[0, 0]]}]}'` + "\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := writeScript(t, tt.body)
			_, err := NewExternal(script, nil).Generate(context.Background(), diagonal(), genericProfile(t), 100)
			if err == nil {
				t.Fatal("Generate() error = nil")
			}
			var rerr *RuntimeError
			if got := errors.As(err, &rerr); got != tt.runtime {
				t.Errorf("RuntimeError = %v, want %v: %v", got, tt.runtime, err)
			}
		})
	}
}

func TestExternalTimeoutFallsBack(t *testing.T) {
	script := writeScript(t, "exec sleep 10\n")

	fb := WithFallback(NewExternal(script, nil), NewInternal(1), 100*time.Millisecond)
	out, err := fb.Generate(context.Background(), diagonal(), genericProfile(t), 100)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(out) != 2 || out[0].Name != channel.Acc {
		t.Errorf("fallback output = %d channels", len(out))
	}
}

func TestFindRuntime(t *testing.T) {
	_, err := FindRuntime("cloud-readers-engine-that-does-not-exist")
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		t.Errorf("FindRuntime() error = %v, want *RuntimeError", err)
	}
}

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	sim, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sim.(*Internal); !ok {
		t.Errorf("New() = %T, want *Internal", sim)
	}

	cfg.Engine = EngineExternal
	cfg.Command = "cloud-readers-engine-that-does-not-exist"
	if _, err = New(cfg); err == nil {
		t.Error("New() with a missing external engine succeeded")
	}
}
