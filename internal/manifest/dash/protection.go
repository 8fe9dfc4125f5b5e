// SPDX-License-Identifier: MIT

package dash

import (
	"strings"

	"github.com/streamsift/streamsift/internal/manifest"
)

// protectionSchemes maps ContentProtection@schemeIdUri values to canonical
// schemes. System ids follow the DASH-IF registry.
var protectionSchemes = map[string]manifest.Scheme{
	"urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed": manifest.SchemeWidevine,
	"urn:uuid:9a04f079-9840-4286-ab92-e65be0885f95": manifest.SchemePlayReady,
	"urn:uuid:e2719d58-a985-b3c9-781a-b030af78d30e": manifest.SchemeClearKey,
	"urn:uuid:1077efec-c0b2-4d02-ace3-3c1e52e2fb4b": manifest.SchemeClearKey,
	"urn:uuid:94ce86fb-07ff-4f43-adb8-93d2fa968ca2": manifest.SchemeFairPlay,
	"urn:uuid:5e629af5-38da-4063-8977-97ffbd9902d4": manifest.SchemeMarlin,
	"urn:uuid:f239e769-efa3-4850-9c16-a903c6932efb": manifest.SchemePrimeTime,
	"urn:mpeg:dash:mp4protection:2011":              manifest.SchemeCENC,
}

// protectionSet accumulates ContentProtection signals across the whole MPD.
// A DRM-specific scheme beats the generic cenc signalling URN no matter which
// appears first in the document.
type protectionSet struct {
	present  bool
	specific manifest.Scheme
	generic  bool
}

func (ps *protectionSet) add(cp contentProtection) {
	uri := strings.ToLower(strings.TrimSpace(cp.SchemeIDURI))
	if uri == "" {
		return
	}
	ps.present = true
	scheme, ok := protectionSchemes[uri]
	if !ok {
		return
	}
	if scheme == manifest.SchemeCENC {
		ps.generic = true
		return
	}
	if ps.specific == "" {
		ps.specific = scheme
	}
}

func (ps *protectionSet) encryption() manifest.Encryption {
	if !ps.present {
		return manifest.Encryption{}
	}
	switch {
	case ps.specific != "":
		return manifest.Encryption{Present: true, Scheme: ps.specific}
	case ps.generic:
		return manifest.Encryption{Present: true, Scheme: manifest.SchemeCENC}
	default:
		return manifest.Encryption{Present: true}
	}
}
