// 数据导入工具：从 GeoJSON 文件读取几何单元并批量写入 PostgreSQL
package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"district-api/internal/geodata"
	"district-api/internal/migrate"
	"district-api/internal/store"
	"district-api/internal/utils"

	"github.com/joho/godotenv"
)

// 读取 GEOJSON_PATH 指定的要素集合，按 GEOLEVEL_NAME/GEOLEVEL_RANK 归入
// 层级并逐条 UPSERT；重复导入幂等
func main() {
	_ = godotenv.Load(".env")
	path := os.Getenv("GEOJSON_PATH")
	if path == "" {
		log.Fatal("GEOJSON_PATH required")
	}
	levelName := os.Getenv("GEOLEVEL_NAME")
	if levelName == "" {
		levelName = "block"
	}
	rank := 1
	if s := os.Getenv("GEOLEVEL_RANK"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			log.Fatal("bad GEOLEVEL_RANK")
		}
		rank = n
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

	n, err := geodata.ImportGeoJSON(context.Background(), st, path, levelName, rank)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("imported %d geounits into level %q", n, levelName)
}
