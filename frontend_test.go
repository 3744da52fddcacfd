package pgfront

import "testing"

// TestMD5Digest pins the challenge response for the default credentials and
// the 0x12345678 salt.
func TestMD5Digest(t *testing.T) {
	digest := md5Digest("postgres", "postgres", []byte{0x12, 0x34, 0x56, 0x78})
	if digest != "md5b400a301a6904ae12fc76a8fff168215" {
		t.Errorf("unexpected digest %s", digest)
	}
}
