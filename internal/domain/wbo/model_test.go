package wbo

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		w, err := Parse([]byte(`{"id":"abc","parentid":"p","predecessorid":"q","sortindex":5,"payload":"{\"x\":1}"}`))
		require.NoError(t, err)

		assert.Equal(t, "abc", w.ID)
		require.NotNil(t, w.ParentID)
		assert.Equal(t, "p", *w.ParentID)
		require.NotNil(t, w.PredecessorID)
		assert.Equal(t, "q", *w.PredecessorID)
		require.NotNil(t, w.SortIndex)
		assert.Equal(t, 5, *w.SortIndex)
		assert.True(t, w.HasPayload())
		assert.Equal(t, len(`{"x":1}`), w.PayloadSize)
	})

	t.Run("missing payload is metadata-only", func(t *testing.T) {
		w, err := Parse([]byte(`{"id":"abc","sortindex":3}`))
		require.NoError(t, err)
		assert.False(t, w.HasPayload())
		assert.Zero(t, w.PayloadSize)
	})

	t.Run("empty payload is still a content write", func(t *testing.T) {
		w, err := Parse([]byte(`{"id":"abc","payload":""}`))
		require.NoError(t, err)
		assert.True(t, w.HasPayload())
		assert.Zero(t, w.PayloadSize)
	})

	t.Run("payload_size is never client supplied", func(t *testing.T) {
		w, err := Parse([]byte(`{"id":"abc","payload":"xyz","payload_size":9999}`))
		require.NoError(t, err)
		assert.Equal(t, 3, w.PayloadSize)
	})

	t.Run("unknown fields ignored", func(t *testing.T) {
		_, err := Parse([]byte(`{"id":"abc","ttl":3600,"whatever":true}`))
		assert.NoError(t, err)
	})

	t.Run("garbage body", func(t *testing.T) {
		_, err := Parse([]byte(`{"id":`))
		assert.Error(t, err)
	})

	t.Run("non integer sortindex", func(t *testing.T) {
		_, err := Parse([]byte(`{"id":"abc","sortindex":1.5}`))
		assert.Error(t, err)
	})
}

func TestExtractID(t *testing.T) {
	assert.Equal(t, "abc", ExtractID([]byte(`{"id":"abc","sortindex":"bad"}`)))
	assert.Equal(t, "", ExtractID([]byte(`not json`)))
}

func TestValidate(t *testing.T) {
	valid := func() *WBO {
		payload := "data"
		return &WBO{ID: "abc", Collection: "bookmarks", Payload: &payload, PayloadSize: 4}
	}

	tests := []struct {
		name    string
		mutate  func(*WBO)
		wantErr string
	}{
		{name: "valid", mutate: func(w *WBO) {}},
		{name: "missing id", mutate: func(w *WBO) { w.ID = "" }, wantErr: "invalid id"},
		{name: "id too long", mutate: func(w *WBO) { w.ID = strings.Repeat("a", MaxIDLen+1) }, wantErr: "invalid id"},
		{name: "id with whitespace", mutate: func(w *WBO) { w.ID = "a b" }, wantErr: "invalid id"},
		{name: "missing collection", mutate: func(w *WBO) { w.Collection = "" }, wantErr: "invalid collection"},
		{name: "sortindex out of range", mutate: func(w *WBO) { idx := MaxSortIndex + 1; w.SortIndex = &idx }, wantErr: "invalid sortindex"},
		{name: "parentid too long", mutate: func(w *WBO) { p := strings.Repeat("p", MaxIDLen+1); w.ParentID = &p }, wantErr: "invalid parentid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := valid()
			tt.mutate(w)
			err := w.Validate(0)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
			}
		})
	}

	t.Run("payload over cap", func(t *testing.T) {
		w := valid()
		assert.Error(t, w.Validate(3))
		assert.NoError(t, w.Validate(4))
	})
}

func TestMarshalOmitsAbsentFields(t *testing.T) {
	w := &WBO{ID: "abc", Collection: "bookmarks"}
	w.SetModified(1234567890.123)

	out, err := json.Marshal(w)
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":"abc","modified":1234567890.12}`, string(out))
	assert.NotContains(t, string(out), "payload")
	assert.NotContains(t, string(out), "collection")
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1234567890.12, Round(1234567890.1234))
	assert.Equal(t, 1234567890.13, Round(1234567890.125))
	assert.Equal(t, 0.0, Round(0))
}
