package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// PathConf is the configuration of a single MediaMTX path, in the shape
// accepted and returned by the MediaMTX control API.
//
// Fields which are not modelled explicitly (camera settings, fields added in
// newer MediaMTX releases) are kept in Extra and round-trip through JSON
// unchanged.
type PathConf struct {
	Name string `json:"name"`

	// General
	Source                     *string `json:"source,omitempty"`
	SourceFingerprint          *string `json:"sourceFingerprint,omitempty"`
	SourceOnDemand             *bool   `json:"sourceOnDemand,omitempty"`
	SourceOnDemandStartTimeout *string `json:"sourceOnDemandStartTimeout,omitempty"`
	SourceOnDemandCloseAfter   *string `json:"sourceOnDemandCloseAfter,omitempty"`
	MaxReaders                 *int    `json:"maxReaders,omitempty"`
	SRTReadPassphrase          *string `json:"srtReadPassphrase,omitempty"`
	Fallback                   *string `json:"fallback,omitempty"`

	// Recording
	Record                *bool   `json:"record,omitempty"`
	RecordPath            *string `json:"recordPath,omitempty"`
	RecordFormat          *string `json:"recordFormat,omitempty"`
	RecordPartDuration    *string `json:"recordPartDuration,omitempty"`
	RecordSegmentDuration *string `json:"recordSegmentDuration,omitempty"`
	RecordDeleteAfter     *string `json:"recordDeleteAfter,omitempty"`

	// Publisher
	OverridePublisher    *bool   `json:"overridePublisher,omitempty"`
	SRTPublishPassphrase *string `json:"srtPublishPassphrase,omitempty"`

	// RTSP source
	RTSPTransport  *string `json:"rtspTransport,omitempty"`
	RTSPAnyPort    *bool   `json:"rtspAnyPort,omitempty"`
	RTSPRangeType  *string `json:"rtspRangeType,omitempty"`
	RTSPRangeStart *string `json:"rtspRangeStart,omitempty"`
	SourceRedirect *string `json:"sourceRedirect,omitempty"`

	// Hooks
	RunOnInit                  *string `json:"runOnInit,omitempty"`
	RunOnInitRestart           *bool   `json:"runOnInitRestart,omitempty"`
	RunOnDemand                *string `json:"runOnDemand,omitempty"`
	RunOnDemandRestart         *bool   `json:"runOnDemandRestart,omitempty"`
	RunOnDemandStartTimeout    *string `json:"runOnDemandStartTimeout,omitempty"`
	RunOnDemandCloseAfter      *string `json:"runOnDemandCloseAfter,omitempty"`
	RunOnUnDemand              *string `json:"runOnUnDemand,omitempty"`
	RunOnReady                 *string `json:"runOnReady,omitempty"`
	RunOnReadyRestart          *bool   `json:"runOnReadyRestart,omitempty"`
	RunOnNotReady              *string `json:"runOnNotReady,omitempty"`
	RunOnRead                  *string `json:"runOnRead,omitempty"`
	RunOnReadRestart           *bool   `json:"runOnReadRestart,omitempty"`
	RunOnUnread                *string `json:"runOnUnread,omitempty"`
	RunOnRecordSegmentCreate   *string `json:"runOnRecordSegmentCreate,omitempty"`
	RunOnRecordSegmentComplete *string `json:"runOnRecordSegmentComplete,omitempty"`

	Extra map[string]any `json:"-"`
}

// Kind returns the PathKind of the path.
func (c PathConf) Kind() PathKind {
	return ClassifySource(c.Source)
}

// IsRecording returns true if recording is enabled for the path.
func (c PathConf) IsRecording() bool {
	return c.Record != nil && *c.Record
}

// pathConfFields has the same fields as PathConf, without the JSON methods.
type pathConfFields PathConf

// pathConfKeys is the set of JSON keys modelled explicitly by PathConf.
var pathConfKeys = jsonKeys(reflect.TypeFor[pathConfFields]())

// UnmarshalJSON implements json.Unmarshaler.
func (c *PathConf) UnmarshalJSON(b []byte) error {
	var fields pathConfFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	fields.Extra = nil
	for k, v := range raw {
		if _, ok := pathConfKeys[k]; ok {
			continue
		}

		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("unmarshal %s: %w", k, err)
		}

		if fields.Extra == nil {
			fields.Extra = make(map[string]any)
		}
		fields.Extra[k] = val
	}

	*c = PathConf(fields)

	return nil
}

// MarshalJSON implements json.Marshaler.
func (c PathConf) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(pathConfFields(c))
	if err != nil {
		return nil, err
	}

	if len(c.Extra) == 0 {
		return b, nil
	}

	var out map[string]any
	if err = json.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	for k, v := range c.Extra {
		if _, ok := out[k]; ok {
			continue
		}
		out[k] = v
	}

	return json.Marshal(out)
}

func jsonKeys(t reflect.Type) map[string]struct{} {
	keys := make(map[string]struct{}, t.NumField())
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = struct{}{}
	}

	return keys
}

// Patch returns c with every field set in partial applied on top, the way
// the media server applies a PATCH request. Extras are merged key by key.
func (c PathConf) Patch(partial PathConf) (PathConf, error) {
	base, err := toJSONMap(c)
	if err != nil {
		return PathConf{}, err
	}

	overlay, err := toJSONMap(partial)
	if err != nil {
		return PathConf{}, err
	}

	for k, v := range overlay {
		base[k] = v
	}

	b, err := json.Marshal(base)
	if err != nil {
		return PathConf{}, err
	}

	var out PathConf
	if err := json.Unmarshal(b, &out); err != nil {
		return PathConf{}, err
	}

	return out, nil
}

func toJSONMap(c PathConf) (map[string]any, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}

	return m, nil
}

var rePathName = regexp.MustCompile(`^[0-9a-zA-Z_\-/\.~]+$`)

// Validate checks the path configuration before it is sent to the media
// server.
func (c PathConf) Validate() error {
	errs := make(ValidationErrors)

	name := c.Name
	switch {
	case strings.TrimSpace(name) == "":
		errs.Append("name", "Name is required")
	case name == CatchAllPathName || name == "all":
		errs.Append("name", "Name is reserved")
	case strings.HasPrefix(name, "/"):
		errs.Append("name", "Name cannot begin with a slash")
	case strings.HasSuffix(name, "/"):
		errs.Append("name", "Name cannot end with a slash")
	case !rePathName.MatchString(name):
		errs.Append("name", "Name can contain only alphanumeric characters, underscore, dot, tilde, minus or slash")
	}

	if c.RecordFormat != nil && *c.RecordFormat != "" && *c.RecordFormat != "fmp4" && *c.RecordFormat != "mpegts" {
		errs.Append("recordFormat", "Record format must be fmp4 or mpegts")
	}

	if c.MaxReaders != nil && *c.MaxReaders < 0 {
		errs.Append("maxReaders", "Max readers cannot be negative")
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}
