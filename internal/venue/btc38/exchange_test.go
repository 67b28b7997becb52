package btc38

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranc1/marketmaker/internal/domain"
)

func testExchange(t *testing.T, handler http.Handler) *Exchange {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewExchange(Config{
		BaseURL:         srv.URL + "/",
		AccessKey:       "ak",
		SecretKey:       "sk",
		AccountID:       "42",
		Coin:            "bts",
		Market:          "cny",
		WallThreshold:   10,
		FeeDeduction:    0.014,
		WithdrawalFee:   0.01,
		VolumePrecision: 5,
	})
}

func TestTopOfBookSkipsDustLevels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/depth.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bts", r.URL.Query().Get("c"))
		assert.Equal(t, "cny", r.URL.Query().Get("mk_type"))
		fmt.Fprint(w, `{"bids":[[0.4402,3],[0.4401,8],[0.4400,500]],"asks":[[0.4444,200],[0.4457,90]]}`)
	})
	ex := testExchange(t, mux)

	bid, ask, err := ex.TopOfBook(context.Background())
	require.NoError(t, err)

	// The two thin bids in front total 11 > wall threshold 10, so the walk
	// stops at the second level with the accumulated volume.
	assert.Equal(t, domain.PriceLevel{Price: 0.4401, Volume: 11}, bid)
	assert.Equal(t, domain.PriceLevel{Price: 0.4444, Volume: 200}, ask)
}

func TestTopOfBookFailureMarker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/depth.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `fail`)
	})
	ex := testExchange(t, mux)

	_, _, err := ex.TopOfBook(context.Background())
	assert.ErrorIs(t, err, domain.ErrBookUnavailable)
}

func TestBalancesParsesStringAmounts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getMyBalance.php", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ak", r.PostForm.Get("key"))

		stamp, err := strconv.ParseInt(r.PostForm.Get("time"), 10, 64)
		require.NoError(t, err)
		sum := md5.Sum(fmt.Appendf(nil, "ak_42_sk_%d", stamp))
		assert.Equal(t, hex.EncodeToString(sum[:]), r.PostForm.Get("md5"))

		fmt.Fprint(w, `{"cny_balance":"1250.5","bts_balance":"300"}`)
	})
	ex := testExchange(t, mux)

	bal, err := ex.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Balance{Quote: 1250.5, Base: 300}, bal)
}

func TestSubmitOrderSidesAndRejection(t *testing.T) {
	var gotType, gotPrice, gotAmount string
	accept := true
	mux := http.NewServeMux()
	mux.HandleFunc("/submitOrder.php", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotType = r.PostForm.Get("type")
		gotPrice = r.PostForm.Get("price")
		gotAmount = r.PostForm.Get("amount")
		if accept {
			fmt.Fprint(w, `succ`)
		} else {
			fmt.Fprint(w, `over balance`)
		}
	})
	ex := testExchange(t, mux)

	require.NoError(t, ex.SubmitOrder(context.Background(), domain.SideBuy, 0.4444, 1000))
	assert.Equal(t, "1", gotType)
	assert.Equal(t, "0.44440", gotPrice)
	assert.Equal(t, "1000.000000", gotAmount)

	require.NoError(t, ex.SubmitOrder(context.Background(), domain.SideSell, 0.45, 989))
	assert.Equal(t, "2", gotType)

	accept = false
	err := ex.SubmitOrder(context.Background(), domain.SideBuy, 0.4444, 1000)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestOpenOrdersNoOrderMarker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getOrderList.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `no_order`)
	})
	ex := testExchange(t, mux)

	orders, err := ex.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOpenOrdersMapsFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getOrderList.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"77","type":"2","price":"0.45","amount":"989","time":"2015-06-01 10:30:00"}]`)
	})
	ex := testExchange(t, mux)

	orders, err := ex.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "77", orders[0].ID)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, 0.45, orders[0].Price)
	assert.Equal(t, 989.0, orders[0].Volume)
	assert.Equal(t, time.Date(2015, 6, 1, 10, 30, 0, 0, time.Local), orders[0].CreatedAt)
}
