package sip

import (
	"errors"
	"net/netip"
	"strconv"
	"strings"
)

var errNoMedia = errors.New("sdp: no media sections")

// Static RTP payload types (RFC 3551) used when a format has no rtpmap.
var staticPayloadTypes = map[string]string{
	"0":  "PCMU/8000",
	"3":  "GSM/8000",
	"4":  "G723/8000",
	"8":  "PCMA/8000",
	"9":  "G722/8000",
	"13": "CN/8000",
	"18": "G729/8000",
}

// media is one negotiated m= section with its endpoints resolved. The RTP
// and RTCP endpoints are the flows the rtp parser sees for this call.
type media struct {
	kind      string
	rtp       netip.AddrPort
	rtcp      netip.AddrPort // equal to rtp when muxed
	rtcpMux   bool
	codecs    []string // in m= format order
	direction string
}

func (m media) summary() map[string]any {
	out := map[string]any{
		"media":     m.kind,
		"rtp":       endpoint(m.rtp),
		"direction": m.direction,
	}
	if m.rtcpMux {
		out["rtcp_mux"] = true
	} else {
		out["rtcp"] = endpoint(m.rtcp)
	}
	if len(m.codecs) > 0 {
		out["codecs"] = m.codecs
	}
	return out
}

func mediaSummaries(ms []media) []map[string]any {
	out := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.summary())
	}
	return out
}

// endpoint renders ip:port, or :port when the body carried no address.
func endpoint(ap netip.AddrPort) string {
	if !ap.Addr().IsValid() {
		return ":" + strconv.Itoa(int(ap.Port()))
	}
	return ap.String()
}

// section collects the lines of one m= block before the session-level
// defaults are known to apply.
type section struct {
	kind      string
	port      uint16
	formats   []string
	addr      netip.Addr
	rtcpPort  uint16
	rtcpAddr  netip.Addr
	rtcpMux   bool
	rtpmap    map[string]string
	direction string
}

func (s *section) resolve(sessionAddr netip.Addr, sessionDir string) media {
	addr := s.addr
	if !addr.IsValid() {
		addr = sessionAddr
	}
	m := media{
		kind:      s.kind,
		rtp:       netip.AddrPortFrom(addr, s.port),
		rtcpMux:   s.rtcpMux,
		direction: s.direction,
	}
	if m.direction == "" {
		m.direction = sessionDir
	}

	switch {
	case s.rtcpMux:
		m.rtcp = m.rtp
	case s.rtcpPort != 0:
		rtcpAddr := s.rtcpAddr
		if !rtcpAddr.IsValid() {
			rtcpAddr = addr
		}
		m.rtcp = netip.AddrPortFrom(rtcpAddr, s.rtcpPort)
	default:
		m.rtcp = netip.AddrPortFrom(addr, s.port+1)
	}

	for _, f := range s.formats {
		if enc, ok := s.rtpmap[f]; ok {
			m.codecs = append(m.codecs, enc)
		} else if enc, ok := staticPayloadTypes[f]; ok {
			m.codecs = append(m.codecs, enc)
		}
	}
	return m
}

// parseSDP returns the media sections of an SDP body. Session-level c= and
// direction attributes apply to every section that does not override them.
func parseSDP(body string) ([]media, error) {
	var (
		sessionAddr netip.Addr
		sessionDir  = "sendrecv"
		sections    []*section
	)

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r ")
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		value := line[2:]

		var cur *section
		if n := len(sections); n > 0 {
			cur = sections[n-1]
		}

		switch line[0] {
		case 'm':
			// m=audio 49170 RTP/AVP 0 8
			fields := strings.Fields(value)
			if len(fields) < 3 {
				continue
			}
			port, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil {
				continue
			}
			sections = append(sections, &section{
				kind:    fields[0],
				port:    uint16(port),
				formats: fields[3:],
				rtpmap:  make(map[string]string),
			})
		case 'c':
			addr, ok := connectionAddr(value)
			if !ok {
				continue
			}
			if cur != nil {
				cur.addr = addr
			} else {
				sessionAddr = addr
			}
		case 'a':
			name, arg, _ := strings.Cut(value, ":")
			switch name {
			case "sendrecv", "sendonly", "recvonly", "inactive":
				if cur != nil {
					cur.direction = name
				} else {
					sessionDir = name
				}
			case "rtcp-mux":
				if cur != nil {
					cur.rtcpMux = true
				}
			case "rtcp":
				// a=rtcp:53020 [IN IP4 192.0.2.1]
				if cur == nil {
					continue
				}
				fields := strings.Fields(arg)
				if len(fields) == 0 {
					continue
				}
				if port, err := strconv.ParseUint(fields[0], 10, 16); err == nil {
					cur.rtcpPort = uint16(port)
				}
				if addr, ok := connectionAddr(strings.Join(fields[1:], " ")); ok {
					cur.rtcpAddr = addr
				}
			case "rtpmap":
				// a=rtpmap:0 PCMU/8000
				if cur == nil {
					continue
				}
				if pt, enc, ok := strings.Cut(arg, " "); ok {
					cur.rtpmap[pt] = strings.TrimSpace(enc)
				}
			}
		}
	}

	if len(sections) == 0 {
		return nil, errNoMedia
	}
	out := make([]media, 0, len(sections))
	for _, s := range sections {
		out = append(out, s.resolve(sessionAddr, sessionDir))
	}
	return out, nil
}

// connectionAddr parses "IN IP4 192.0.2.1" (a trailing /ttl is ignored).
func connectionAddr(value string) (netip.Addr, bool) {
	fields := strings.Fields(value)
	if len(fields) < 3 || fields[0] != "IN" {
		return netip.Addr{}, false
	}
	host, _, _ := strings.Cut(fields[2], "/")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
