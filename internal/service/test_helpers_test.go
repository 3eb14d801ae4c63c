package service_test

import (
	. "github.com/chasepay/settlement/internal/service"

	"time"

	"github.com/chasepay/settlement/internal/models"
	"github.com/chasepay/settlement/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fixture is a minimal settlement world: one merchant, one c2c method,
// one funded trader with a single active requisite, all relations
// enabled. Tests mutate it from there.
type fixture struct {
	store     *memstore.Store
	merchant  models.Merchant
	method    models.Method
	trader    models.Trader
	requisite models.Requisite
	device    models.Device
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFixture() *fixture {
	st := memstore.New()

	merchant := models.Merchant{
		ID:    uuid.New(),
		Name:  "acme-shop",
		Token: "merchant-token-1",
	}
	method := models.Method{
		ID:        uuid.New(),
		Code:      "c2c-rub",
		Type:      "c2c",
		Currency:  "RUB",
		MinPayin:  dec("100"),
		MaxPayin:  dec("100000"),
		MinPayout: dec("100"),
		MaxPayout: dec("100000"),
		Tolerance: dec("0"),
		Enabled:   true,
	}
	trader := models.Trader{
		ID:                     uuid.New(),
		Name:                   "trader-one",
		TrafficEnabled:         true,
		TrustBalance:           dec("1000"),
		FiatBalance:            dec("100000"),
		MaxSimultaneousPayouts: 5,
	}
	device := models.Device{
		ID:        uuid.New(),
		TraderID:  trader.ID,
		Name:      "pixel-7",
		IsOnline:  true,
		IsWorking: true,
	}
	deviceID := device.ID
	requisite := models.Requisite{
		ID:            uuid.New(),
		TraderID:      trader.ID,
		DeviceID:      &deviceID,
		MethodType:    "c2c",
		BankType:      "Sberbank",
		CardNumber:    "4276 1600 1234 5678",
		RecipientName: "IVAN I.",
		IsActive:      true,
		UpdatedAt:     time.Now().Add(-time.Hour),
	}

	st.PutMerchant(merchant)
	st.PutMethod(method)
	st.PutMerchantMethod(models.MerchantMethod{
		MerchantID: merchant.ID,
		MethodID:   method.ID,
		IsEnabled:  true,
	})
	st.PutTrader(trader)
	st.PutDevice(device)
	st.PutRequisite(requisite)
	st.PutTraderMerchant(models.TraderMerchant{
		TraderID:          trader.ID,
		MerchantID:        merchant.ID,
		MethodID:          method.ID,
		FeeIn:             dec("2"),
		FeeOut:            dec("1"),
		IsMerchantEnabled: true,
		IsFeeInEnabled:    true,
		IsFeeOutEnabled:   true,
	})

	return &fixture{
		store:     st,
		merchant:  merchant,
		method:    method,
		trader:    trader,
		requisite: requisite,
		device:    device,
	}
}

// addTrader seeds another funded trader with one requisite and full
// relations to the fixture merchant.
func (f *fixture) addTrader(trust string, bankType string, updatedAt time.Time) (models.Trader, models.Requisite) {
	trader := models.Trader{
		ID:             uuid.New(),
		Name:           "trader-" + uuid.NewString()[:8],
		TrafficEnabled: true,
		TrustBalance:   dec(trust),
	}
	requisite := models.Requisite{
		ID:            uuid.New(),
		TraderID:      trader.ID,
		MethodType:    "c2c",
		BankType:      bankType,
		CardNumber:    "5536 9140 0000 1111",
		RecipientName: "PETR P.",
		IsActive:      true,
		UpdatedAt:     updatedAt,
	}
	f.store.PutTrader(trader)
	f.store.PutRequisite(requisite)
	f.store.PutTraderMerchant(models.TraderMerchant{
		TraderID:          trader.ID,
		MerchantID:        f.merchant.ID,
		MethodID:          f.method.ID,
		FeeIn:             dec("2"),
		FeeOut:            dec("1"),
		IsMerchantEnabled: true,
		IsFeeInEnabled:    true,
		IsFeeOutEnabled:   true,
	})
	return trader, requisite
}

func (f *fixture) paymentService() *PaymentService {
	callbacks := NewCallbackDispatcher(f.store, time.Second)
	return NewPaymentService(f.store, callbacks, decimal.Zero, 30*time.Minute)
}

func (f *fixture) createParams(orderID, amount, rate string) CreatePaymentParams {
	return CreatePaymentParams{
		MerchantID: f.merchant.ID,
		MethodID:   f.method.ID,
		OrderID:    orderID,
		Amount:     dec(amount),
		Rate:       dec(rate),
	}
}
