package bankparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Sberbank(t *testing.T) {
	ev := Extract("ru.sberbankmobile", "Сбербанк", "Перевод 5000 р от Ivan P.")
	assert.Equal(t, "Sberbank", ev.Bank)
	require.True(t, ev.HasAmounts())
	assert.Equal(t, "5000", ev.Amounts[0].String())
}

func TestExtract_Tinkoff(t *testing.T) {
	ev := Extract("com.idamob.tinkoff.android", "Тинькофф", "Пополнение, 1 500.50 RUB. Карта *4321")
	assert.Equal(t, "Tinkoff", ev.Bank)
	require.True(t, ev.HasAmounts())
	assert.Equal(t, "1500.5", ev.Amounts[0].String())
	assert.Equal(t, "4321", ev.CardTail)
}

func TestExtract_SBPWinsInsideOtherApps(t *testing.T) {
	// SBP phrasing inside the Sberbank app must resolve as SBP.
	ev := Extract("ru.sberbankmobile", "", "Поступление 3000 р Счет*1234 СБП")
	assert.Equal(t, "SBP", ev.Bank)
	require.True(t, ev.HasAmounts())
	assert.Equal(t, "3000", ev.Amounts[0].String())
	assert.Equal(t, "1234", ev.CardTail)
}

func TestExtract_AliasFallback(t *testing.T) {
	// Unknown package, but the text names the bank.
	ev := Extract("com.android.messaging", "Альфа-Банк", "Зачисление 2000 р")
	assert.Equal(t, "Alfa-Bank", ev.Bank)
	require.True(t, ev.HasAmounts())
	assert.Equal(t, "2000", ev.Amounts[0].String())
}

func TestExtract_GenericCurrencyMarker(t *testing.T) {
	// No bank recognized, but an explicit currency marker still yields
	// an amount.
	ev := Extract("com.unknown.bank", "", "+750 руб на счет")
	assert.Empty(t, ev.Bank)
	require.True(t, ev.HasAmounts())
	assert.Equal(t, "750", ev.Amounts[0].String())
}

func TestExtract_NoEvidence(t *testing.T) {
	cases := []struct {
		name    string
		pkg     string
		title   string
		message string
	}{
		{"plain chat", "com.whatsapp", "Anna", "see you at 7"},
		{"empty", "", "", ""},
		{"number without currency", "com.unknown", "", "code 482193"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := Extract(tc.pkg, tc.title, tc.message)
			assert.False(t, ev.HasAmounts())
		})
	}
}

func TestExtract_SpacedThousands(t *testing.T) {
	ev := Extract("ru.sberbankmobile", "", "Перевод 15 000 р")
	require.True(t, ev.HasAmounts())
	assert.Equal(t, "15000", ev.Amounts[0].String())
}

func TestExtract_CommaDecimal(t *testing.T) {
	ev := Extract("com.idamob.tinkoff.android", "", "Пополнение, 999,99 руб")
	require.True(t, ev.HasAmounts())
	assert.Equal(t, "999.99", ev.Amounts[0].String())
}
