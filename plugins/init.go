// Package plugins registers all built-in parsers.
package plugins

import (
	"firestige.xyz/flowtap/internal/parser"
	"firestige.xyz/flowtap/plugins/parser/hexdump"
	"firestige.xyz/flowtap/plugins/parser/rtp"
	"firestige.xyz/flowtap/plugins/parser/sip"
	"firestige.xyz/flowtap/plugins/parser/tls"
)

// RegisterBuiltins registers every parser shipped with flowtap.
func RegisterBuiltins(reg *parser.Registry) error {
	builtins := []struct {
		name string
		ctor parser.Constructor
	}{
		{tls.Name, tls.New},
		{sip.Name, sip.New},
		{rtp.Name, rtp.New},
		{hexdump.Name, hexdump.New},
	}
	for _, b := range builtins {
		if err := reg.Register(b.name, b.ctor); err != nil {
			return err
		}
	}
	return nil
}
