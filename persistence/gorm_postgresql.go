// persistence/gorm_postgresql.go
package persistence

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/mafiaserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		gormlogger.Config{
			SlowThreshold: time.Second,       // 慢SQL阈值
			LogLevel:      gormlogger.Silent, // 日志级别
			Colorful:      false,             // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormGameRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func toGormRecord(record models.GameRecord) (models.GormGameRecord, error) {
	players, err := encodePlayers(record.Players)
	if err != nil {
		return models.GormGameRecord{}, err
	}
	return models.GormGameRecord{
		RecordID:  record.ID,
		RoomCode:  record.RoomCode,
		Winner:    string(record.Winner),
		Rounds:    record.Rounds,
		Players:   players,
		StartedAt: record.StartedAt,
		EndedAt:   record.EndedAt,
	}, nil
}

func fromGormRecord(row models.GormGameRecord) (models.GameRecord, error) {
	players, err := decodePlayers(row.Players)
	if err != nil {
		return models.GameRecord{}, err
	}
	return models.GameRecord{
		ID:        row.RecordID,
		RoomCode:  row.RoomCode,
		Winner:    models.Winner(row.Winner),
		Rounds:    row.Rounds,
		Players:   players,
		StartedAt: row.StartedAt,
		EndedAt:   row.EndedAt,
	}, nil
}

// SaveGameRecord 保存游戏记录
func (p *GormPostgreSQL) SaveGameRecord(record models.GameRecord) error {
	row, err := toGormRecord(record)
	if err != nil {
		return err
	}
	return p.db.Create(&row).Error
}

// GetGameRecord 按记录ID查询
func (p *GormPostgreSQL) GetGameRecord(id string) (models.GameRecord, error) {
	var row models.GormGameRecord
	if err := p.db.Where("record_id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GameRecord{}, ErrRecordNotFound
		}
		return models.GameRecord{}, err
	}
	return fromGormRecord(row)
}

// ListGameRecords 最近的对局在前
func (p *GormPostgreSQL) ListGameRecords(limit int) ([]models.GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.GormGameRecord
	if err := p.db.Order("ended_at desc, id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]models.GameRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromGormRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetStats 按胜方统计
func (p *GormPostgreSQL) GetStats() (models.RecordStats, error) {
	var stats models.RecordStats
	err := p.db.Raw(`
        SELECT
            COUNT(*) AS total_games,
            COALESCE(SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END), 0) AS mafia_wins,
            COALESCE(SUM(CASE WHEN winner = ? THEN 1 ELSE 0 END), 0) AS citizens_wins
        FROM game_records`,
		string(models.WinnerMafia), string(models.WinnerCitizens),
	).Scan(&stats).Error
	return stats, err
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
