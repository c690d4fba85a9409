package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Pablu23/fsp/internal/common"
)

func TestFormatProtection(t *testing.T) {
	tests := []struct {
		pro  common.Protection
		want string
	}{
		{common.Protection{Get: true, List: true}, "public --g-l-"},
		{common.Protection{Owner: true, Add: true, Delete: true, Get: true, MakeDir: true, List: true, Rename: true}, "owner cdgmlr"},
		{common.Protection{Add: true}, "public c-----"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, formatProtection(&test.pro))
	}
}
