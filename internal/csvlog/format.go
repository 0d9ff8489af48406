package csvlog

import (
	"math/big"
	"strconv"

	"permsim/internal/domain"
)

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func itoa32(v domain.AgentId) string {
	return strconv.FormatUint(uint64(v), 10)
}

func u32toa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func priceString(p *domain.Price) string {
	if p == nil {
		return ""
	}
	return p.String()
}
