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
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"relationship-custody-go/internal/common"
	"relationship-custody-go/internal/config"
	"relationship-custody-go/internal/hashchain"
	"relationship-custody-go/internal/models"
	"relationship-custody-go/internal/store"

	"go.uber.org/zap"
)

const usage = `usage: relationships <command> [flags]

commands:
  register  --owner <id|email> --contact <id|email> [--type direct] [--at RFC3339] [--notes text]
  list      --owner <id|email>
  verify    --hash <digest> | --owner <id|email>`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	args := os.Args[2:]
	switch os.Args[1] {
	case "register":
		runRegister(ctx, services, args)
	case "list":
		runList(ctx, services, args)
	case "verify":
		runVerify(ctx, services, args)
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
}

func runRegister(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	ownerFlag := fs.String("owner", "", "Member claiming the relationship")
	contactFlag := fs.String("contact", "", "Member being claimed")
	typeFlag := fs.String("type", "direct", "Relationship type")
	atFlag := fs.String("at", "", "When the relationship was established (RFC3339, default now)")
	notesFlag := fs.String("notes", "", "Free text notes")
	_ = fs.Parse(args)

	owner := mustResolve(ctx, services, *ownerFlag)
	contact := mustResolve(ctx, services, *contactFlag)

	var established time.Time
	if *atFlag != "" {
		t, err := time.Parse(time.RFC3339, *atFlag)
		if err != nil {
			zap.L().Fatal("Invalid --at timestamp", zap.String("at", *atFlag), zap.Error(err))
		}
		established = t
	}

	r, err := services.Custody.RegisterRelationship(models.WithActor(ctx, owner.Id), store.CustodyParams{
		OwnerId:          owner.Id,
		ContactId:        contact.Id,
		RelationshipType: *typeFlag,
		EstablishedAt:    established,
		Notes:            *notesFlag,
	})
	if err != nil {
		zap.L().Fatal("Failed to register relationship", zap.Error(err))
	}

	common.PrintHeader("RELATIONSHIP REGISTERED", common.WideWidth)
	fmt.Printf("Id:          %d\n", r.Id)
	fmt.Printf("Owner:       %s (%d)\n", owner.Name, owner.Id)
	fmt.Printf("Contact:     %s (%d)\n", contact.Name, contact.Id)
	fmt.Printf("Established: %s\n", hashchain.FormatTimestamp(r.EstablishedAt))
	fmt.Printf("Digest:      %s\n", r.TimestampHash)
	fmt.Printf("Previous:    %s\n", r.PrevHash)
	common.PrintSeparator("=", common.WideWidth)
}

func runList(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	ownerFlag := fs.String("owner", "", "Member whose custody chain to list")
	_ = fs.Parse(args)

	owner := mustResolve(ctx, services, *ownerFlag)
	relationships, err := services.Custody.ListRelationships(ctx, owner.Id)
	if err != nil {
		zap.L().Fatal("Failed to list relationships", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("CUSTODY CHAIN: %s (%d links)", owner.Name, len(relationships)), common.WideWidth)
	for i, r := range relationships {
		isLast := i == len(relationships)-1
		fmt.Printf("%s#%d contact %d  %s  %s\n", common.BoxPrefix(isLast), r.Id, r.ContactId,
			hashchain.FormatTimestamp(r.EstablishedAt), common.ShortHash(r.TimestampHash))
		fmt.Printf("%s   type=%s prev=%s\n", common.BoxDetailPrefix(isLast), r.RelationshipType, common.ShortHash(r.PrevHash))
	}
	common.PrintSeparator("=", common.WideWidth)
}

func runVerify(ctx context.Context, services *common.Services, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	hashFlag := fs.String("hash", "", "Digest to verify")
	ownerFlag := fs.String("owner", "", "Walk this member's whole chain instead")
	_ = fs.Parse(args)

	if *hashFlag != "" {
		result := services.Custody.VerifyDigest(ctx, *hashFlag)
		fmt.Printf("%s valid=%t", common.Check(result.Valid), result.Valid)
		if result.EstablishedAt != "" {
			fmt.Printf(" establishedAt=%s", result.EstablishedAt)
		}
		fmt.Println()
		return
	}

	owner := mustResolve(ctx, services, *ownerFlag)
	n, err := services.Custody.VerifyOwnerChain(ctx, owner.Id)
	if err != nil {
		fmt.Printf("%s chain of %s is broken: %v\n", common.Check(false), owner.Name, err)
		services.Close()
		os.Exit(1)
	}
	fmt.Printf("%s chain of %s verified (%d links)\n", common.Check(true), owner.Name, n)
}

func mustResolve(ctx context.Context, services *common.Services, ref string) *models.User {
	if ref == "" {
		zap.L().Fatal("A member id or email is required")
	}
	user, err := common.ResolveUser(ctx, services.DbService, ref)
	if err != nil {
		zap.L().Fatal("Failed to resolve member", zap.String("member", ref), zap.Error(err))
	}
	return user
}
