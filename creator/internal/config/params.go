package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/qtcstream/qtcstream/creator/internal/qtc"
)

// ErrInvalidParams is returned when a parameter update is rejected. The
// previous parameters stay in effect.
var ErrInvalidParams = errors.New("config: invalid params")

// Params are the classifier and smoothing parameters that can change while
// the pipeline runs.
type Params struct {
	QTCType            qtc.Variant   `mapstructure:"qtc_type"`
	QuantisationFactor float64       `mapstructure:"quantisation_factor"`
	DistanceThreshold  float64       `mapstructure:"distance_threshold"`
	Validate           bool          `mapstructure:"validate"`
	Collapse           bool          `mapstructure:"collapse"`
	SmoothingRate      time.Duration `mapstructure:"smoothing_rate"`
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		QTCType:            qtc.QTCC,
		QuantisationFactor: 0.01,
		DistanceThreshold:  1.2,
		Validate:           true,
		Collapse:           true,
		SmoothingRate:      300 * time.Millisecond,
	}
}

// Check checks parameter ranges. It does not modify p.
func (p Params) Check() error {
	if !p.QTCType.Valid() {
		return fmt.Errorf("%w: unknown qtc_type %q", ErrInvalidParams, p.QTCType)
	}
	if !(p.QuantisationFactor > 0) || math.IsInf(p.QuantisationFactor, 0) {
		return fmt.Errorf("%w: quantisation_factor must be positive", ErrInvalidParams)
	}
	if !(p.DistanceThreshold > 0) || math.IsInf(p.DistanceThreshold, 0) {
		return fmt.Errorf("%w: distance_threshold must be positive", ErrInvalidParams)
	}
	if p.SmoothingRate < 0 {
		return fmt.Errorf("%w: smoothing_rate must not be negative", ErrInvalidParams)
	}
	return nil
}

// Options converts p to classifier options.
func (p Params) Options() qtc.Options {
	return qtc.Options{
		Variant:            p.QTCType,
		QuantisationFactor: p.QuantisationFactor,
		DistanceThreshold:  p.DistanceThreshold,
		Validate:           p.Validate,
		Collapse:           p.Collapse,
	}
}

type paramsJSON struct {
	QTCType            qtc.Variant `json:"qtc_type"`
	QuantisationFactor float64     `json:"quantisation_factor"`
	DistanceThreshold  float64     `json:"distance_threshold"`
	Validate           bool        `json:"validate"`
	Collapse           bool        `json:"collapse"`
	SmoothingRate      float64     `json:"smoothing_rate"`
}

// MarshalJSON renders smoothing_rate in seconds.
func (p Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramsJSON{
		QTCType:            p.QTCType,
		QuantisationFactor: p.QuantisationFactor,
		DistanceThreshold:  p.DistanceThreshold,
		Validate:           p.Validate,
		Collapse:           p.Collapse,
		SmoothingRate:      p.SmoothingRate.Seconds(),
	})
}

// UnmarshalJSON accepts the same forms as a live update.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	next, err := decode(*p, raw)
	if err != nil {
		return err
	}
	*p = next
	return nil
}

// UnmarshalYAML overlays the document's keys onto p with the same rules as a
// live update: smoothing_rate in seconds or as a duration string, qtc_type by
// name or index.
func (p *Params) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	next, err := decode(*p, raw)
	if err != nil {
		return err
	}
	*p = next
	return nil
}

// decode overlays patch onto base. Unknown keys are an error.
func decode(base Params, patch map[string]any) (Params, error) {
	next := base
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(secondsHook, variantHook),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &next,
	})
	if err != nil {
		return base, err
	}
	if err := dec.Decode(patch); err != nil {
		return base, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return next, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	variantType  = reflect.TypeOf(qtc.Variant(""))
)

// secondsHook decodes durations from a number of seconds or a duration
// string such as "500ms".
func secondsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return secondsToDuration(v)
	case int:
		return secondsToDuration(float64(v))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return secondsToDuration(f)
		}
		return time.ParseDuration(v)
	}
	return data, nil
}

func secondsToDuration(s float64) (time.Duration, error) {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, fmt.Errorf("invalid duration %v", s)
	}
	return time.Duration(s * float64(time.Second)), nil
}

// variantHook decodes qtc_type from a name or from the index 0, 1 or 2.
func variantHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != variantType {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("qtc_type index %v is not an integer", v)
		}
		return qtc.VariantByIndex(int(v))
	case int:
		return qtc.VariantByIndex(v)
	case string:
		return qtc.ParseVariant(v)
	}
	return data, nil
}

// ParamStore holds the live parameters. Readers take a Snapshot at the start
// of a tick; writers replace the whole value.
type ParamStore struct {
	mu  sync.Mutex // serialises writers
	cur atomic.Pointer[Params]
}

// NewParamStore returns a store holding p, which must be valid.
func NewParamStore(p Params) *ParamStore {
	s := &ParamStore{}
	s.cur.Store(&p)
	return s
}

// Snapshot returns the current parameters.
func (s *ParamStore) Snapshot() Params {
	return *s.cur.Load()
}

// Replace validates p and makes it current.
func (s *ParamStore) Replace(p Params) error {
	if err := p.Check(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cur.Store(&p)
	s.mu.Unlock()
	return nil
}

// Apply overlays a partial update onto the current parameters. On any error
// the current parameters are left unchanged.
func (s *ParamStore) Apply(patch map[string]any) (Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := decode(*s.cur.Load(), patch)
	if err != nil {
		return Params{}, err
	}
	if err := next.Check(); err != nil {
		return Params{}, err
	}
	s.cur.Store(&next)
	return next, nil
}
