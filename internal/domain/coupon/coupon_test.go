package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon *Coupon
	err    error
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.err
}

func TestCoupon_Validate(t *testing.T) {
	tests := []struct {
		name    string
		coupon  Coupon
		wantErr bool
	}{
		{name: "zero discount", coupon: Coupon{Code: "FREE", Discount: decimal.Zero}},
		{name: "full discount", coupon: Coupon{Code: "ALL", Discount: decimal.NewFromInt(100)}},
		{name: "fractional", coupon: Coupon{Code: "HALF", Discount: decimal.RequireFromString("12.5")}},
		{name: "negative", coupon: Coupon{Code: "NEG", Discount: decimal.NewFromInt(-1)}, wantErr: true},
		{name: "over hundred", coupon: Coupon{Code: "BIG", Discount: decimal.RequireFromString("100.01")}, wantErr: true},
		{name: "empty code", coupon: Coupon{Discount: decimal.NewFromInt(10)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coupon.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCoupon_DiscountOn(t *testing.T) {
	c := Coupon{Code: "TEN", Discount: decimal.NewFromInt(10)}
	assert.True(t, decimal.NewFromInt(2).Equal(c.DiscountOn(decimal.NewFromInt(20))))

	c.Discount = decimal.RequireFromString("33")
	assert.Equal(t, "3.3", c.DiscountOn(decimal.NewFromInt(10)).String())
}

func TestCoupon_Eligibility(t *testing.T) {
	newUser := Coupon{Code: "WELCOME", ForNewUser: true}
	require.NoError(t, newUser.CheckNewUser(0))

	err := newUser.CheckNewUser(1)
	var ie *IneligibleError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, AudienceNewUsers, ie.Audience)
	assert.ErrorIs(t, err, ErrIneligible)
	assert.Equal(t, "This coupon is only for new users", err.Error())

	member := Coupon{Code: "PLUS", ForMember: true}
	require.NoError(t, member.CheckMember(true))
	err = member.CheckMember(false)
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, AudienceMembers, ie.Audience)
	assert.Equal(t, "This coupon is only for members", err.Error())

	open := Coupon{Code: "OPEN"}
	assert.NoError(t, open.CheckNewUser(5))
	assert.NoError(t, open.CheckMember(false))
}

func TestFinder_Find(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		repo    *mockCouponRepo
		wantErr error
	}{
		{
			name: "active coupon",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "SAVE10", Discount: decimal.NewFromInt(10), ExpiresAt: fixedNow.Add(time.Hour),
			}},
		},
		{
			name: "no expiry",
			repo: &mockCouponRepo{coupon: &Coupon{Code: "SAVE10", Discount: decimal.NewFromInt(10)}},
		},
		{
			name:    "unknown code",
			repo:    &mockCouponRepo{err: ErrNotFound},
			wantErr: ErrNotFound,
		},
		{
			name: "expired coupon is not found",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "OLD", Discount: decimal.NewFromInt(10), ExpiresAt: fixedNow.Add(-time.Hour),
			}},
			wantErr: ErrNotFound,
		},
		{
			name: "malformed discount",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code: "BAD", Discount: decimal.NewFromInt(150), ExpiresAt: fixedNow.Add(time.Hour),
			}},
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFinder(tt.repo)
			f.now = func() time.Time { return fixedNow }

			c, err := f.Find(context.Background(), "ANY")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestFinder_RepositoryError(t *testing.T) {
	f := NewFinder(&mockCouponRepo{err: errors.New("connection refused")})

	_, err := f.Find(context.Background(), "SAVE10")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestSnapshot(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &Coupon{
		Code:        "PLUS20",
		Description: "20% off",
		Discount:    decimal.RequireFromString("20.5"),
		ForMember:   true,
		ExpiresAt:   expires,
	}

	data := MarshalSnapshot(in)
	assert.Contains(t, string(data), `"discount":20.5`)

	out, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Code, out.Code)
	assert.True(t, in.Discount.Equal(out.Discount))
	assert.True(t, out.ForMember)
	assert.True(t, expires.Equal(out.ExpiresAt))
}

func TestSnapshot_Empty(t *testing.T) {
	assert.Equal(t, "{}", string(MarshalSnapshot(nil)))

	c, err := UnmarshalSnapshot([]byte("{}"))
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = UnmarshalSnapshot([]byte(`{"code":"X","discount":"7","extra":[1,2]}`))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, decimal.NewFromInt(7).Equal(c.Discount))
}
