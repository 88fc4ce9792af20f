// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AyushRauniyar/RFP-Management-System/internal/models"
)

// Seed is the YAML layout for bootstrapping vendors and sent RFPs in
// development.
type Seed struct {
	Vendors []SeedVendor `yaml:"vendors"`
	RFPs    []SeedRFP    `yaml:"rfps"`
}

type SeedVendor struct {
	Name            string   `yaml:"name"`
	Email           string   `yaml:"email"`
	ContactPerson   string   `yaml:"contact_person"`
	Phone           string   `yaml:"phone"`
	Specializations []string `yaml:"specializations"`
}

type SeedRFP struct {
	ID          string                   `yaml:"id"`
	Title       string                   `yaml:"title"`
	Description string                   `yaml:"description"`
	Status      string                   `yaml:"status"`
	Budget      float64                  `yaml:"budget"`
	Items       []models.RequirementItem `yaml:"items"`
	Recipients  []string                 `yaml:"recipients"`
	CreatedAt   time.Time                `yaml:"created_at"`
}

// LoadSeed reads a seed file and writes its contents to s. Vendors that
// already exist are reused. Sent RFPs get a placeholder proposal per
// recipient.
func LoadSeed(ctx context.Context, s Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for _, sv := range seed.Vendors {
		v := &models.Vendor{
			Name:            sv.Name,
			Email:           sv.Email,
			ContactPerson:   sv.ContactPerson,
			Phone:           sv.Phone,
			Specializations: sv.Specializations,
		}
		if err := s.CreateVendor(ctx, v); err != nil && !errors.Is(err, ErrDuplicate) {
			return fmt.Errorf("seed vendor %s: %w", sv.Email, err)
		}
	}

	for _, sr := range seed.RFPs {
		r := &models.RFP{
			ID:          sr.ID,
			Title:       sr.Title,
			Description: sr.Description,
			Status:      models.NormalizeStatus(models.RFPStatus(sr.Status)),
			Requirements: models.Requirements{
				Items:  sr.Items,
				Budget: sr.Budget,
			},
			CreatedAt: sr.CreatedAt,
		}
		for _, email := range sr.Recipients {
			v, err := s.VendorByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("seed rfp %q recipient %s: %w", sr.Title, email, err)
			}
			r.Recipients = append(r.Recipients, *v)
		}
		if err := s.CreateRFP(ctx, r); err != nil {
			if errors.Is(err, ErrDuplicate) {
				continue
			}
			return fmt.Errorf("seed rfp %q: %w", sr.Title, err)
		}

		if r.Status == models.RFPDraft {
			continue
		}
		for _, v := range r.Recipients {
			p := &models.Proposal{RFPID: r.ID, VendorID: v.ID, Status: models.ProposalSent}
			if err := s.UpsertProposal(ctx, p); err != nil {
				return fmt.Errorf("seed proposal placeholder: %w", err)
			}
		}
	}

	slog.Info("seed data loaded",
		"vendors", len(seed.Vendors),
		"rfps", len(seed.RFPs),
	)
	return nil
}
