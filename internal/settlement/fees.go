/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package settlement

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// FeeTier applies Rate to deals worth at least MinDealValue.
type FeeTier struct {
	MinDealValue string `yaml:"min_deal_value"`
	Rate         string `yaml:"rate"`
}

type feeScheduleFile struct {
	DefaultRate string    `yaml:"default_rate"`
	Currency    string    `yaml:"currency"`
	Tiers       []FeeTier `yaml:"tiers"`
}

type feeTier struct {
	min  decimal.Decimal
	rate decimal.Decimal
}

// FeeSchedule picks the fee rate charged on a closing deal.
type FeeSchedule struct {
	defaultRate decimal.Decimal
	currency    string
	tiers       []feeTier // ascending by min
}

// NewFeeSchedule is a schedule with a single flat rate.
func NewFeeSchedule(defaultRate decimal.Decimal, currency string) *FeeSchedule {
	return &FeeSchedule{defaultRate: defaultRate, currency: currency}
}

// LoadFeeSchedule reads a YAML fee schedule. Relative paths resolve against the
// working directory. Fields missing from the file fall back to the given defaults.
func LoadFeeSchedule(feesFile string, defaultRate decimal.Decimal, currency string) (*FeeSchedule, error) {
	var feesPath string
	if filepath.IsAbs(feesFile) {
		feesPath = feesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		feesPath = filepath.Join(wd, feesFile)
	}

	data, err := os.ReadFile(feesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", feesFile, err)
	}
	return ParseFeeSchedule(data, defaultRate, currency)
}

func ParseFeeSchedule(data []byte, defaultRate decimal.Decimal, currency string) (*FeeSchedule, error) {
	var file feeScheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse fee schedule: %w", err)
	}

	schedule := NewFeeSchedule(defaultRate, currency)
	if file.Currency != "" {
		schedule.currency = file.Currency
	}
	if file.DefaultRate != "" {
		rate, err := parseRate(file.DefaultRate)
		if err != nil {
			return nil, fmt.Errorf("default_rate: %w", err)
		}
		schedule.defaultRate = rate
	}

	for i, t := range file.Tiers {
		floor, err := decimal.NewFromString(t.MinDealValue)
		if err != nil || floor.IsNegative() {
			return nil, fmt.Errorf("tier at index %d has invalid min_deal_value %q", i, t.MinDealValue)
		}
		rate, err := parseRate(t.Rate)
		if err != nil {
			return nil, fmt.Errorf("tier at index %d: %w", i, err)
		}
		schedule.tiers = append(schedule.tiers, feeTier{min: floor, rate: rate})
	}
	sort.Slice(schedule.tiers, func(i, j int) bool {
		return schedule.tiers[i].min.LessThan(schedule.tiers[j].min)
	})
	return schedule, nil
}

func parseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q", s)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s outside [0, 1]", s)
	}
	return rate, nil
}

// RateFor returns the rate of the highest tier the deal value reaches, or the
// default rate when no tier applies.
func (f *FeeSchedule) RateFor(dealValue decimal.Decimal) decimal.Decimal {
	rate := f.defaultRate
	for _, t := range f.tiers {
		if dealValue.LessThan(t.min) {
			break
		}
		rate = t.rate
	}
	return rate
}

func (f *FeeSchedule) Currency() string {
	return f.currency
}
