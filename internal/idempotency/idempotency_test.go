package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeRecord(encodeRecord(Record{Status: 409, Body: []byte(`{"code":409}`)}))
	require.NoError(t, err)
	assert.Equal(t, 409, rec.Status)
	assert.Equal(t, `{"code":409}`, string(rec.Body))

	rec, err = decodeRecord(encodeRecord(Record{Status: 200, Body: []byte(`{}`), Fingerprint: "abc"}))
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.Fingerprint)

	for _, bad := range []string{`pending`, `{"body":""}`, `{"status":"x"}`} {
		_, err := decodeRecord([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestRedisStore_Key(t *testing.T) {
	s := NewRedisStore(nil, RedisConfig{})
	assert.Equal(t, "orders:idempotency:abc", s.key("abc"))
}

func TestRecord_Matches(t *testing.T) {
	a := Fingerprint([]byte(`{"branch_id":1}`))
	b := Fingerprint([]byte(`{"branch_id":2}`))
	require.NotEqual(t, a, b)
	assert.Equal(t, a, Fingerprint([]byte(`{"branch_id":1}`)))
	assert.Len(t, a, 64)

	assert.True(t, (&Record{Fingerprint: a}).Matches(a))
	assert.False(t, (&Record{Fingerprint: a}).Matches(b))
	assert.True(t, (&Record{}).Matches(b), "legacy records replay")
}

func TestRedisStore_ClaimTTL(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewRedisStore(nil, RedisConfig{}).ClaimTTL())
	assert.Equal(t, time.Second, NewRedisStore(nil, RedisConfig{LockTTL: time.Second}).ClaimTTL())
}
