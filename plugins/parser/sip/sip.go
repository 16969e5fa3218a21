// Package sip parses SIP signaling carried one message per payload chunk.
// It counts requests and responses and follows each call by Call-ID,
// including the SDP offer and answer media.
package sip

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	gosip "github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/patrickmn/go-cache"

	"firestige.xyz/flowtap/internal/core"
	"firestige.xyz/flowtap/internal/log"
	flowparser "firestige.xyz/flowtap/internal/parser"
)

const Name = "sip"

var ErrNotSIP = errors.New("not SIP")

// SIP methods recognised at the start of a request line.
var sipMethods = [][]byte{
	[]byte("INVITE"),
	[]byte("ACK"),
	[]byte("BYE"),
	[]byte("CANCEL"),
	[]byte("REGISTER"),
	[]byte("OPTIONS"),
	[]byte("PRACK"),
	[]byte("SUBSCRIBE"),
	[]byte("NOTIFY"),
	[]byte("PUBLISH"),
	[]byte("INFO"),
	[]byte("REFER"),
	[]byte("MESSAGE"),
	[]byte("UPDATE"),
}

var sipVersion = []byte("SIP/2.0")

type Options struct {
	// CallTTL forgets calls idle for longer than this, 0 keeps them all.
	CallTTL time.Duration `mapstructure:"call_ttl"`
}

// call tracks one dialog by Call-ID.
type call struct {
	id      string
	methods []string
	final   int // last final response status
	ended   bool
	offer   []media
	answer  []media
}

type Parser struct {
	delegate *parser.PacketParser
	logger   log.Logger
	calls    *cache.Cache // Call-ID -> *call

	requests  map[string]uint64
	responses map[string]uint64
	notSIP    uint64
}

func New(options map[string]any) (flowparser.Parser, error) {
	var opts Options
	if err := flowparser.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	// Expired calls are dropped on access, no janitor goroutine.
	ttl := cache.NoExpiration
	if opts.CallTTL > 0 {
		ttl = opts.CallTTL
	}

	logger := log.GetLogger().WithField("parser", Name)
	return &Parser{
		delegate:  parser.NewPacketParser(newLogAdapter(logger)),
		logger:    logger,
		calls:     cache.New(ttl, 0),
		requests:  make(map[string]uint64),
		responses: make(map[string]uint64),
	}, nil
}

// detect is a cheap check on the start line before the full parse.
func detect(data []byte) bool {
	if bytes.HasPrefix(data, sipVersion) {
		return true
	}
	for _, method := range sipMethods {
		if bytes.HasPrefix(data, method) && len(data) > len(method) && data[len(method)] == ' ' {
			return true
		}
	}
	return false
}

func (p *Parser) Parse(data []byte, dir core.Direction) error {
	if !detect(data) {
		p.notSIP++
		return ErrNotSIP
	}

	msg, err := p.delegate.ParseMessage(data)
	if err != nil {
		p.notSIP++
		if p.logger.IsDebugEnabled() {
			p.logger.WithError(err).Debugf("Failed to parse SIP message: %s", data)
		}
		return fmt.Errorf("%w: %v", ErrNotSIP, err)
	}

	var c *call
	if id, ok := msg.CallID(); ok {
		c = p.lookup(id.Value())
	}

	switch m := msg.(type) {
	case gosip.Request:
		method := string(m.Method())
		p.requests[method]++
		if c == nil {
			break
		}
		c.methods = append(c.methods, method)
		switch method {
		case "INVITE":
			if sdp := sdpBody(msg); sdp != nil {
				c.offer = sdp
			}
		case "BYE", "CANCEL":
			c.ended = true
		}
	case gosip.Response:
		status := int(m.StatusCode())
		p.responses[strconv.Itoa(status)]++
		if c == nil || status < 200 {
			break
		}
		c.final = status
		if cseq, ok := msg.CSeq(); ok && cseq.MethodName == gosip.INVITE && status < 300 {
			if sdp := sdpBody(msg); sdp != nil {
				c.answer = sdp
			}
		}
	}
	return nil
}

func (p *Parser) lookup(id string) *call {
	if v, ok := p.calls.Get(id); ok {
		c := v.(*call)
		p.calls.SetDefault(id, c)
		return c
	}
	c := &call{id: id}
	p.calls.SetDefault(id, c)
	return c
}

// sdpBody returns the media of the SDP body of msg, or nil.
func sdpBody(msg gosip.Message) []media {
	body := msg.Body()
	if body == "" {
		return nil
	}
	for _, h := range msg.Headers() {
		name := strings.ToLower(h.Name())
		if (name == "content-type" || name == "c") && strings.Contains(strings.ToLower(h.Value()), "application/sdp") {
			sdp, err := parseSDP(body)
			if err != nil {
				return nil
			}
			return sdp
		}
	}
	return nil
}

// Summary lists request and response counts and every call seen.
func (p *Parser) Summary() map[string]any {
	items := p.calls.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	calls := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		c := items[id].Object.(*call)
		entry := map[string]any{
			"call_id": c.id,
			"methods": c.methods,
			"ended":   c.ended,
		}
		if c.final != 0 {
			entry["final_status"] = c.final
		}
		if c.offer != nil {
			entry["offer"] = mediaSummaries(c.offer)
		}
		if c.answer != nil {
			entry["answer"] = mediaSummaries(c.answer)
		}
		calls = append(calls, entry)
	}

	summary := map[string]any{
		"requests":  p.requests,
		"responses": p.responses,
		"calls":     calls,
	}
	if p.notSIP > 0 {
		summary["not_sip"] = p.notSIP
	}
	return summary
}
