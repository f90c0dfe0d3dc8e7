package knowledge

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Document rappresenta un documento veterinario ingerito nella base di conoscenza
type Document struct {
	ID        uint   `gorm:"primaryKey"`
	Path      string `gorm:"uniqueIndex;not null"`
	Title     string
	Checksum  string `gorm:"index"`
	Chunks    []Chunk
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk è una porzione di documento con il suo embedding serializzato
type Chunk struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID uint   `gorm:"index;not null"`
	Ordinal    int    `gorm:"not null"`
	Text       string `gorm:"not null"`
	// Embedding vettore float32 serializzato little-endian
	Embedding []byte
	CreatedAt time.Time
}

// Store persiste documenti e chunk su SQLite tramite GORM
type Store struct {
	db *gorm.DB
}

// NewStore apre (o crea) il database della base di conoscenza
func NewStore(path string) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge database: %w", err)
	}

	if err := db.AutoMigrate(&Document{}, &Chunk{}); err != nil {
		return nil, fmt.Errorf("failed to migrate knowledge database: %w", err)
	}

	return &Store{db: db}, nil
}

// FindByChecksum restituisce il documento con il checksum dato, se presente
func (s *Store) FindByChecksum(path, checksum string) (*Document, error) {
	var doc Document
	err := s.db.Where("path = ? AND checksum = ?", path, checksum).First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// SaveDocument salva un documento e i suoi chunk, sostituendo la versione
// precedente con lo stesso path
func (s *Store) SaveDocument(doc *Document) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing Document
		err := tx.Where("path = ?", doc.Path).First(&existing).Error
		if err == nil {
			if err := tx.Where("document_id = ?", existing.ID).Delete(&Chunk{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		return tx.Create(doc).Error
	})
}

// AllChunks restituisce tutti i chunk con i relativi documenti
func (s *Store) AllChunks() ([]Chunk, error) {
	var chunks []Chunk
	if err := s.db.Order("document_id, ordinal").Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// DocumentTitle restituisce il titolo del documento con l'ID dato
func (s *Store) DocumentTitle(id uint) (string, error) {
	var doc Document
	if err := s.db.Select("title").First(&doc, id).Error; err != nil {
		return "", err
	}
	return doc.Title, nil
}

// CountDocuments restituisce il numero di documenti ingeriti
func (s *Store) CountDocuments() (int64, error) {
	var count int64
	err := s.db.Model(&Document{}).Count(&count).Error
	return count, err
}

// Close chiude la connessione al database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
