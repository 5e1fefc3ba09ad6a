package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstructionsEmbedKnowledgeDocument(t *testing.T) {
	text := instructions()

	assert.Contains(t, text, "<context>")
	assert.Contains(t, text, "</context>")
	assert.Contains(t, text, "SkillSynx is a career tools platform")
	assert.False(t, strings.Contains(text, "%s"), "template placeholder must be substituted")
}
