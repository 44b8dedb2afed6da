package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Parameter names accepted in job parameters.
const (
	ParamQuality    = "quality"
	ParamMaxThreads = "max_threads"
	ParamStart      = "start_time"
	ParamEnd        = "end_time"
	ParamTimestamp  = "timestamp"
)

// ParseParams converts named string parameters into Params. Unknown names are
// ignored; malformed numbers are ErrInvalidParam.
func ParseParams(values map[string]string) (Params, error) {
	var p Params

	if v := strings.TrimSpace(values[ParamQuality]); v != "" {
		q, err := parseInt(ParamQuality, v)
		if err != nil {
			return p, err
		}
		p.Quality = &q
	}
	if v := strings.TrimSpace(values[ParamMaxThreads]); v != "" {
		n, err := parseInt(ParamMaxThreads, v)
		if err != nil {
			return p, err
		}
		if n <= 0 {
			return p, fmt.Errorf("%w: max_threads must be positive", ErrInvalidParam)
		}
		p.MaxThreads = n
	}

	p.Start = values[ParamStart]
	p.End = values[ParamEnd]
	p.Timestamp = values[ParamTimestamp]
	return p, nil
}

// parseInt accepts integers and integral floats ("2", "2.0") since JSON
// numbers arrive in either form.
func parseInt(name, v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidParam, name, v)
	}
	return int(f), nil
}

// Validate checks that op, the number of inputs and p would produce a valid
// command line, without touching the filesystem.
func Validate(op Operation, inputs int, p Params) error {
	if !op.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidParam, op)
	}
	if op == OpMetadata {
		if inputs != 1 {
			return fmt.Errorf("%w: %s takes exactly one input", ErrInvalidParam, op)
		}
		return nil
	}

	placeholders := make([]string, inputs)
	for i := range placeholders {
		placeholders[i] = "in" + strconv.Itoa(i)
	}
	_, err := BuildArgs(Request{Op: op, Inputs: placeholders, Output: "out", ListFile: "list", Params: p})
	return err
}
