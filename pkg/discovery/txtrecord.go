package discovery

import (
	"fmt"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *Info) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion: TXTVersion,
		TXTKeyPath:    info.Path,
	}
	if txt[TXTKeyPath] == "" {
		txt[TXTKeyPath] = DefaultPath
	}
	if len(info.Subprotocols) > 0 {
		txt[TXTKeyProtocol] = strings.Join(info.Subprotocols, ",")
	}
	if info.Secure {
		txt[TXTKeyTLS] = "1"
	}
	if len(info.Objects) > 0 {
		objs := strings.Join(info.Objects, ",")
		if len(TXTKeyObjects)+1+len(objs) <= MaxTXTStringLen {
			txt[TXTKeyObjects] = objs
		}
	}
	return txt
}

// DecodeTXT parses the TXT records of a discovered instance into svc.
func DecodeTXT(txt TXTRecordMap, svc *Service) error {
	version, ok := txt[TXTKeyVersion]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if version != TXTVersion {
		return fmt.Errorf("%w: %s", ErrUnsupported, version)
	}
	path, ok := txt[TXTKeyPath]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPath)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	svc.Path = path
	svc.Subprotocols = splitList(txt[TXTKeyProtocol])
	svc.Objects = splitList(txt[TXTKeyObjects])
	svc.Secure = txt[TXTKeyTLS] == "1"
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// TXTRecordsToStrings converts a TXT map to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	out := make([]string, 0, len(txt))
	for k, v := range txt {
		out = append(out, k+"="+v)
	}
	return out
}

// StringsToTXTRecords parses "key=value" strings. Keys are case-insensitive
// and the first occurrence wins; a string without "=" is a boolean key.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		key, value, _ := strings.Cut(r, "=")
		key = strings.ToLower(key)
		if key == "" {
			continue
		}
		if _, dup := txt[key]; !dup {
			txt[key] = value
		}
	}
	return txt
}
