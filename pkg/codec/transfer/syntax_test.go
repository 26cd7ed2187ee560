package transfer

import (
	"testing"

	"github.com/jpfielding/dcmjpeg.go/pkg/compress/jpeg"
	"github.com/stretchr/testify/assert"
)

func TestSyntax_Process(t *testing.T) {
	tests := []struct {
		syntax Syntax
		want   jpeg.Process
		ok     bool
	}{
		{JPEGBaseline, jpeg.ProcessBaseline, true},
		{JPEGExtended, jpeg.ProcessExtended, true},
		{JPEGLossless, jpeg.ProcessLossless, true},
		{JPEGLosslessFirstOrder, jpeg.ProcessLosslessFirstOrder, true},
		{ExplicitVRLittleEndian, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.syntax.Name(), func(t *testing.T) {
			got, ok := tt.syntax.Process()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.Equal(t, tt.syntax, ForProcess(got))
				assert.True(t, tt.syntax.IsEncapsulated())
			}
		})
	}
}

func TestSyntax_Accepts(t *testing.T) {
	assert.True(t, JPEGLossless.Accepts(jpeg.ProcessLosslessFirstOrder))
	assert.True(t, JPEGLossless.Accepts(jpeg.ProcessLossless))
	assert.False(t, JPEGLosslessFirstOrder.Accepts(jpeg.ProcessLossless))
	assert.False(t, JPEGBaseline.Accepts(jpeg.ProcessExtended))
	assert.False(t, ImplicitVRLittleEndian.Accepts(jpeg.ProcessBaseline))
}

func TestSyntax_Classification(t *testing.T) {
	assert.True(t, JPEGBaseline.IsJPEGLossy())
	assert.False(t, JPEGBaseline.IsJPEGLossless())
	assert.True(t, JPEGLosslessFirstOrder.IsJPEGLossless())
	assert.False(t, ImplicitVRLittleEndian.IsEncapsulated())
	assert.Equal(t, "1.2.3", FromUID("1.2.3").Name())
	assert.Equal(t, JPEGLossless, FromUID("1.2.840.10008.1.2.4.57\x00"))
	assert.Equal(t, JPEGBaseline, FromUID("1.2.840.10008.1.2.4.50 "))
}
