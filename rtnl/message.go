package rtnl

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m-lab/rtnl-proxy/attr"
	"github.com/m-lab/rtnl-proxy/proxymetrics"
)

// Message is a fully decoded link message: its fixed payload plus its
// attribute set.
type Message struct {
	Payload LinkPayload
	Attrs   *attr.Set
}

// Decode parses a full link message: PayloadLen bytes of fixed payload
// followed by a TLV attribute stream running to the end of buf.
func Decode(buf []byte) (*Message, error) {
	start := time.Now()
	defer func() {
		proxymetrics.DecodeTimeHistogram.With(prometheus.Labels{"family": "link"}).Observe(time.Since(start).Seconds())
	}()
	payload, err := DecodePayload(buf)
	if err != nil {
		return nil, err
	}
	attrs, err := attr.Decode(buf[PayloadLen:], LinkSchema)
	if err != nil {
		return nil, fmt.Errorf("rtnl: decoding attributes: %w", err)
	}
	return &Message{Payload: payload, Attrs: attrs}, nil
}

// Encode serializes m back to wire form.
func Encode(m *Message) ([]byte, error) {
	start := time.Now()
	defer func() {
		proxymetrics.EncodeTimeHistogram.With(prometheus.Labels{"family": "link"}).Observe(time.Since(start).Seconds())
	}()
	attrBytes, err := attr.Encode(m.Attrs, LinkSchema)
	if err != nil {
		return nil, fmt.Errorf("rtnl: encoding attributes: %w", err)
	}
	out := EncodePayload(m.Payload)
	return append(out, attrBytes...), nil
}

// SetFlags applies the flags encode hook: flags may be
// given as a raw u32 (applied to m.Payload.Flags, with Change left as
// whatever the caller already set) or as a list of textual names (resolved
// via iflags and written to both Flags and Change).
func (m *Message) SetFlags(v interface{}) error {
	value, change, err := FlagsFromValue(v)
	if err != nil {
		return err
	}
	m.Payload.Flags = value
	if _, isNames := v.([]string); isNames {
		m.Payload.Change = change
	}
	return nil
}
