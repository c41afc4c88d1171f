package ratings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/touge-service-manager-go/pkg/rating"
)

func TestRenderTop(t *testing.T) {
	out := renderTop([]rating.Record{
		{PlayerID: "7656", Name: "Takumi", Rating: 1210, RacesCompleted: 42},
		{PlayerID: "7657", Name: "Keisuke", Rating: 1090, RacesCompleted: 4},
	}, 20)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, lines[3], "Takumi")
	assert.NotContains(t, lines[3], "provisional")
	assert.Contains(t, lines[4], "Keisuke")
	assert.Contains(t, lines[4], "provisional")
}
