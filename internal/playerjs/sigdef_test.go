package playerjs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syntheticPlayerJS = `var Mu={XX:function(a,b){a.splice(0,b)},YY:function(a){a.reverse()}};
;xK=function(a){a=a.split("");Mu.XX(a,3);return a.join("")};
a.D&&(b=a.get("n"))&&(b=nF(b));
nF=function(a){var b=a.split("");b.reverse();return b.join("")};
var ST={signatureTimestamp:19834};`

func TestExtractFunctionsFindsSigManglerAndNcode(t *testing.T) {
	def, err := ExtractFunctions(syntheticPlayerJS)
	require.NoError(t, err)

	assert.Contains(t, def.SigCode, "const Mu=")
	assert.Contains(t, def.SigCode, "const sig=function(a)")
	assert.Contains(t, def.NcodeCode, "const ncode=function(a)")
	require.NotNil(t, def.JSSts)
	assert.Equal(t, 19834, *def.JSSts)
}

func TestExtractFunctionsMissingSigNameIsError(t *testing.T) {
	_, err := ExtractFunctions("this bundle has no recognizable sig function at all")
	assert.Error(t, err)
}

func TestFindSigFnNameTriesCandidatesInOrder(t *testing.T) {
	name, err := findSigFnName(syntheticPlayerJS)
	require.NoError(t, err)
	assert.Equal(t, "xK", name)
}
