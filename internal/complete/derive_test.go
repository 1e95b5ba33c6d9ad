package complete

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveProvisions_EnumeratedOutline(t *testing.T) {
	outline := "一、環境基準の設定方法を見直すこと。二、事業者の報告義務を拡充すること。三、罰則規定を整備すること。"

	got := DeriveProvisions(outline)
	require.Len(t, got, 3)
	assert.Equal(t, "環境基準の設定方法を見直すこと", got[0])
	assert.Equal(t, "事業者の報告義務を拡充すること", got[1])
	assert.Equal(t, "罰則規定を整備すること", got[2])
}

func TestDeriveProvisions_SentenceFallback(t *testing.T) {
	outline := "環境基準の設定方法を全面的に見直すものとする。あわせて事業者の報告義務を大幅に拡充するものとする。"

	got := DeriveProvisions(outline)
	require.Len(t, got, 2)
	assert.Equal(t, "環境基準の設定方法を全面的に見直すものとする", got[0])
}

func TestDeriveProvisions_DropsShortFragments(t *testing.T) {
	outline := "一、短い。二、事業者の報告義務を大幅に拡充すること。"
	got := DeriveProvisions(outline)
	require.Len(t, got, 1)
	assert.Equal(t, "事業者の報告義務を大幅に拡充すること", got[0])
}

func TestDeriveProvisions_CapsListLength(t *testing.T) {
	var sb strings.Builder
	for range 20 {
		sb.WriteString("・委員会における審査手続を整備すること。")
	}
	got := DeriveProvisions(sb.String())
	assert.Len(t, got, maxProvisions)
}

func TestDeriveProvisions_Empty(t *testing.T) {
	assert.Nil(t, DeriveProvisions(""))
	assert.Nil(t, DeriveProvisions("   "))
	assert.Nil(t, DeriveProvisions("短文。"))
}
