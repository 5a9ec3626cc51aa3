package discovery_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/pkg/discovery"
)

func TestEncodeDecodeTXT(t *testing.T) {
	info := &discovery.Info{
		Instance:     "living-room",
		Path:         "/channel",
		Subprotocols: []string{"webchannel.cbor", "webchannel.json"},
		Objects:      []string{"thermostat", "lamp"},
		Secure:       true,
	}

	records := discovery.TXTRecordsToStrings(discovery.EncodeTXT(info))
	assert.ElementsMatch(t, []string{
		"txtvers=1",
		"path=/channel",
		"proto=webchannel.cbor,webchannel.json",
		"objs=thermostat,lamp",
		"tls=1",
	}, records)

	var svc discovery.Service
	require.NoError(t, discovery.DecodeTXT(discovery.StringsToTXTRecords(records), &svc))
	assert.Equal(t, "/channel", svc.Path)
	assert.Equal(t, info.Subprotocols, svc.Subprotocols)
	assert.Equal(t, info.Objects, svc.Objects)
	assert.True(t, svc.Secure)
}

func TestEncodeTXTDefaults(t *testing.T) {
	txt := discovery.EncodeTXT(&discovery.Info{Instance: "x"})
	if txt[discovery.TXTKeyPath] != discovery.DefaultPath {
		t.Errorf("path = %q, want %q", txt[discovery.TXTKeyPath], discovery.DefaultPath)
	}
	if _, ok := txt[discovery.TXTKeyProtocol]; ok {
		t.Error("proto should be omitted without subprotocols")
	}
	if _, ok := txt[discovery.TXTKeyObjects]; ok {
		t.Error("objs should be omitted without objects")
	}
}

func TestEncodeTXTDropsOversizedObjectList(t *testing.T) {
	objects := make([]string, 0, 40)
	for range 40 {
		objects = append(objects, "object-with-a-long-name")
	}
	txt := discovery.EncodeTXT(&discovery.Info{Instance: "x", Objects: objects})
	_, ok := txt[discovery.TXTKeyObjects]
	assert.False(t, ok)
}

func TestDecodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  discovery.TXTRecordMap
		want error
	}{
		{"missing version", discovery.TXTRecordMap{"path": "/ws"}, discovery.ErrMissingRequired},
		{"future version", discovery.TXTRecordMap{"txtvers": "2", "path": "/ws"}, discovery.ErrUnsupported},
		{"missing path", discovery.TXTRecordMap{"txtvers": "1"}, discovery.ErrMissingRequired},
		{"relative path", discovery.TXTRecordMap{"txtvers": "1", "path": "ws"}, discovery.ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var svc discovery.Service
			err := discovery.DecodeTXT(tt.txt, &svc)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeTXT() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := discovery.StringsToTXTRecords([]string{"PATH=/ws", "path=/other", "flag", "=novalue", "empty="})
	assert.Equal(t, discovery.TXTRecordMap{"path": "/ws", "flag": "", "empty": ""}, txt)
}

func TestServiceURL(t *testing.T) {
	svc := &discovery.Service{Host: "demo.local.", Port: 8080, Path: "/ws"}
	assert.Equal(t, "ws://demo.local.:8080/ws", svc.URL())

	svc.Addresses = []string{"fe80::1", "192.168.1.10"}
	assert.Equal(t, "ws://[fe80::1]:8080/ws", svc.URL())

	svc.Secure = true
	assert.Equal(t, "wss://[fe80::1]:8080/ws", svc.URL())
}

func TestInfoValidate(t *testing.T) {
	assert.ErrorIs(t, (&discovery.Info{}).Validate(), discovery.ErrInvalidInstance)
	assert.ErrorIs(t, (&discovery.Info{Instance: "x", Path: "ws"}).Validate(), discovery.ErrInvalidPath)
	assert.NoError(t, (&discovery.Info{Instance: "x"}).Validate())
}
