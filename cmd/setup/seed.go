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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type SeedMember struct {
	Name          string `yaml:"name"`
	Email         string `yaml:"email"`
	Kyb           string `yaml:"kyb"`
	PayoutAddress string `yaml:"payoutAddress"`
	PayoutNetwork string `yaml:"payoutNetwork"`
}

type SeedRelationship struct {
	Owner         string `yaml:"owner"`
	Contact       string `yaml:"contact"`
	Type          string `yaml:"type"`
	EstablishedAt string `yaml:"establishedAt"`
	Notes         string `yaml:"notes"`
}

type SeedReview struct {
	Reviewer string `yaml:"reviewer"`
	Reviewee string `yaml:"reviewee"`
	Rating   int    `yaml:"rating"`
}

type SeedCompliance struct {
	Member string `yaml:"member"`
	Type   string `yaml:"type"`
	Status string `yaml:"status"`
}

type SeedMilestone struct {
	Id      string `yaml:"id"`
	Name    string `yaml:"name"`
	Trigger bool   `yaml:"trigger"`
}

type SeedParticipant struct {
	Member string `yaml:"member"`
	Role   string `yaml:"role"`
	Pct    string `yaml:"pct"`
}

type SeedDeal struct {
	Title        string            `yaml:"title"`
	Originator   string            `yaml:"originator"`
	Counterparty string            `yaml:"counterparty"`
	Value        string            `yaml:"value"`
	Currency     string            `yaml:"currency"`
	Milestones   []SeedMilestone   `yaml:"milestones"`
	Participants []SeedParticipant `yaml:"participants"`
	Complete     []string          `yaml:"complete"`
	Close        bool              `yaml:"close"`
}

type Seed struct {
	Members       []SeedMember       `yaml:"members"`
	Relationships []SeedRelationship `yaml:"relationships"`
	Reviews       []SeedReview       `yaml:"reviews"`
	Compliance    []SeedCompliance   `yaml:"compliance"`
	Deals         []SeedDeal         `yaml:"deals"`
}

func LoadSeed(seedFile string) (*Seed, error) {
	var seedPath string
	if filepath.IsAbs(seedFile) {
		seedPath = seedFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		seedPath = filepath.Join(wd, seedFile)
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", seedFile, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", seedFile, err)
	}
	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", seedFile, err)
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	emails := make(map[string]bool, len(s.Members))
	for i, m := range s.Members {
		if m.Name == "" || m.Email == "" {
			return fmt.Errorf("member at index %d missing name or email", i)
		}
		if emails[m.Email] {
			return fmt.Errorf("member at index %d duplicates %s", i, m.Email)
		}
		emails[m.Email] = true
	}
	known := func(ref string) bool { return emails[ref] }

	for i, r := range s.Relationships {
		if !known(r.Owner) || !known(r.Contact) {
			return fmt.Errorf("relationship at index %d references an unknown member", i)
		}
		if r.Type == "" {
			return fmt.Errorf("relationship at index %d missing type", i)
		}
	}
	for i, r := range s.Reviews {
		if !known(r.Reviewer) || !known(r.Reviewee) {
			return fmt.Errorf("review at index %d references an unknown member", i)
		}
		if r.Rating < 1 || r.Rating > 5 {
			return fmt.Errorf("review at index %d has rating %d outside 1..5", i, r.Rating)
		}
	}
	for i, c := range s.Compliance {
		if !known(c.Member) || c.Type == "" || c.Status == "" {
			return fmt.Errorf("compliance check at index %d is incomplete", i)
		}
	}
	for i, d := range s.Deals {
		if d.Title == "" || !known(d.Originator) {
			return fmt.Errorf("deal at index %d missing title or originator", i)
		}
		if d.Counterparty != "" && !known(d.Counterparty) {
			return fmt.Errorf("deal at index %d references an unknown counterparty", i)
		}
		for j, p := range d.Participants {
			if !known(p.Member) || p.Role == "" {
				return fmt.Errorf("deal at index %d participant %d is incomplete", i, j)
			}
		}
	}
	return nil
}
