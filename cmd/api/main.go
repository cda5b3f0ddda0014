package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"meritflow/auth"
	"meritflow/db"
	"meritflow/dispute"
	"meritflow/evidence"
	"meritflow/policy"
	"meritflow/roster"
	"meritflow/sprint"
	"meritflow/submission"
)

func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	authService := auth.NewService(auth.NewRepository(pool), jwtSecret)

	orgID := os.Getenv("ORG_ID")
	if orgID == "" {
		orgID = policy.DefaultOrgID
	}

	disputeService := dispute.NewService(
		dispute.NewRepository(pool),
		submission.NewRepository(pool),
		sprint.NewRepository(pool),
		policy.NewStore(pool, orgID),
	)

	rosterService := roster.NewService(roster.NewRepository(pool))

	server := NewServer(authService, disputeService, rosterService)

	if key := os.Getenv("EVIDENCE_SIGNING_KEY"); key != "" {
		baseURL := os.Getenv("EVIDENCE_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:8080/files"
		}
		signer := evidence.NewSigner(baseURL, key)
		disputeService.WithEvidenceSigner(signer, 15*time.Minute)

		evidenceDir := os.Getenv("EVIDENCE_DIR")
		if evidenceDir == "" {
			evidenceDir = "./evidence-store"
		}
		server.WithEvidenceDownloads(signer, evidenceDir)
	}

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("api listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
