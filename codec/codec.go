// Package codec flattens structured entity fields into the compact JSON text
// columns of the reactive store and rebuilds them on read.
//
// Encoding never fails a mutation: a value that cannot be serialized is
// written as the empty string. Decoding never fails a read: empty, missing or
// malformed text yields an empty collection. Both paths log and count what
// they drop.
package codec

import (
	"context"
	"encoding/json"

	"go.pilab.hu/oidcstore/log"
	"go.pilab.hu/oidcstore/metrics"
	"golang.org/x/text/language"
)

// Kinds label the codec failure counter.
const (
	KindStrings    = "strings"
	KindLocalized  = "localized"
	KindProperties = "properties"
	KindSettings   = "settings"
)

// Codec converts between structured values and flat text columns.
type Codec struct {
	logger log.Logger
}

// New returns a Codec. A nil logger discards codec diagnostics.
func New(logger log.Logger) *Codec {
	return &Codec{logger: log.OrNop(logger).With(map[string]interface{}{"component": "codec"})}
}

func (c *Codec) encode(kind string, v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		metrics.CodecFailures.WithLabelValues(kind, "encode").Inc()
		c.logger.Warn(context.Background(), "dropping unencodable column value", map[string]interface{}{
			"kind":  kind,
			"error": err.Error(),
		})
		return ""
	}
	return string(b)
}

func (c *Codec) decode(kind, text string, v any) bool {
	if text == "" {
		return false
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		metrics.CodecFailures.WithLabelValues(kind, "decode").Inc()
		c.logger.Debug(context.Background(), "ignoring malformed column value", map[string]interface{}{
			"kind":  kind,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// EncodeStrings serializes a list, keeping order and duplicates. An empty list
// encodes to "".
func (c *Codec) EncodeStrings(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return c.encode(KindStrings, values)
}

// DecodeStrings is the inverse of EncodeStrings and EncodeSet.
func (c *Codec) DecodeStrings(text string) []string {
	var out []string
	if !c.decode(KindStrings, text, &out) || out == nil {
		return []string{}
	}
	return out
}

// EncodeSet serializes an ordered set: the first occurrence of each value is
// kept and empty values are dropped.
func (c *Codec) EncodeSet(values []string) string {
	seen := make(map[string]struct{}, len(values))
	set := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		set = append(set, v)
	}
	return c.EncodeStrings(set)
}

// EncodeLocalized serializes a locale keyed map using each tag's canonical
// name as the key.
func (c *Codec) EncodeLocalized(values map[language.Tag]string) string {
	if len(values) == 0 {
		return ""
	}
	flat := make(map[string]string, len(values))
	for tag, v := range values {
		flat[tag.String()] = v
	}
	return c.encode(KindLocalized, flat)
}

// DecodeLocalized is the inverse of EncodeLocalized. Keys that do not parse
// as a language tag are dropped.
func (c *Codec) DecodeLocalized(text string) map[language.Tag]string {
	out := map[language.Tag]string{}
	var flat map[string]string
	if !c.decode(KindLocalized, text, &flat) {
		return out
	}
	for key, v := range flat {
		tag, err := language.Parse(key)
		if err != nil {
			metrics.CodecFailures.WithLabelValues(KindLocalized, "decode").Inc()
			c.logger.Debug(context.Background(), "dropping unparsable locale", map[string]interface{}{"locale": key})
			continue
		}
		out[tag] = v
	}
	return out
}

// EncodeProperties serializes an opaque property bag.
func (c *Codec) EncodeProperties(values map[string]json.RawMessage) string {
	if len(values) == 0 {
		return ""
	}
	return c.encode(KindProperties, values)
}

// DecodeProperties is the inverse of EncodeProperties.
func (c *Codec) DecodeProperties(text string) map[string]json.RawMessage {
	var out map[string]json.RawMessage
	if !c.decode(KindProperties, text, &out) || out == nil {
		return map[string]json.RawMessage{}
	}
	return out
}

// EncodeSettings serializes a string to string settings map.
func (c *Codec) EncodeSettings(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}
	return c.encode(KindSettings, values)
}

// DecodeSettings is the inverse of EncodeSettings.
func (c *Codec) DecodeSettings(text string) map[string]string {
	var out map[string]string
	if !c.decode(KindSettings, text, &out) || out == nil {
		return map[string]string{}
	}
	return out
}
