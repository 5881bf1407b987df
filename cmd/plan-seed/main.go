// 计划初始化工具：建立空计划并预置目标数量的选区（含 0 号未指派区）
package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"district-api/internal/migrate"
	"district-api/internal/store"
	"district-api/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	name := os.Getenv("PLAN_NAME")
	if name == "" {
		log.Fatal("PLAN_NAME required")
	}
	body := os.Getenv("LEGISLATIVE_BODY")
	if body == "" {
		body = "State Assembly"
	}
	owner := os.Getenv("PLAN_OWNER")
	if owner == "" {
		owner = "admin"
	}
	numDistricts := 10
	if s := os.Getenv("NUM_DISTRICTS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			log.Fatal("bad NUM_DISTRICTS")
		}
		numDistricts = n
	}

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db); err != nil {
		log.Fatal(err)
	}
	st := store.AttachDB(db)

	id, err := st.CreatePlan(context.Background(), name, body, owner, numDistricts)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("plan %d created: %q (%d districts + unassigned)", id, name, numDistricts)
}
