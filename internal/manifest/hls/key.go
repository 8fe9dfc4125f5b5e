// SPDX-License-Identifier: MIT

package hls

import (
	"strings"

	"github.com/streamsift/streamsift/internal/manifest"
)

// keyFormatSchemes maps known KEYFORMAT values to canonical schemes. The
// "identity" format is resolved from the METHOD instead.
var keyFormatSchemes = map[string]manifest.Scheme{
	"urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed": manifest.SchemeWidevine,
	"com.widevine.alpha":                            manifest.SchemeWidevine,
	"com.apple.streamingkeydelivery":                manifest.SchemeFairPlay,
	"com.microsoft.playready":                       manifest.SchemePlayReady,
	"urn:uuid:9a04f079-9840-4286-ab92-e65be0885f95": manifest.SchemePlayReady,
}

// encryptionFromKey interprets an EXT-X-KEY or EXT-X-SESSION-KEY attribute
// list. It returns false for METHOD=NONE or a missing method.
func encryptionFromKey(attrs map[string]string) (manifest.Encryption, bool) {
	method := strings.ToUpper(attrs["METHOD"])
	if method == "" || method == "NONE" {
		return manifest.Encryption{}, false
	}

	format := strings.ToLower(strings.TrimSpace(attrs["KEYFORMAT"]))
	if format == "" || format == "identity" {
		switch method {
		case "AES-128":
			return manifest.Encryption{Present: true, Scheme: manifest.SchemeAES128}, true
		case "SAMPLE-AES", "SAMPLE-AES-CTR", "SAMPLE-AES-CENC":
			return manifest.Encryption{Present: true, Scheme: manifest.SchemeSampleAES}, true
		default:
			return manifest.Encryption{Present: true}, true
		}
	}

	if scheme, ok := keyFormatSchemes[format]; ok {
		return manifest.Encryption{Present: true, Scheme: scheme}, true
	}
	// Unknown key format still means the stream is protected.
	return manifest.Encryption{Present: true}, true
}
