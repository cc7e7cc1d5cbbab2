package models

import (
	"encoding/json"
	"fmt"
	"time"

	"resume-extractor/internal/types"

	"gorm.io/datatypes"
)

// ExtractionRecord 一次成功提取的历史记录
type ExtractionRecord struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordID        string         `gorm:"type:char(36);uniqueIndex:idx_extraction_records_record_id" json:"recordId"`
	BatchID         string         `gorm:"type:char(36);index:idx_extraction_records_batch_id" json:"batchId"`
	FileName        string         `gorm:"type:varchar(255)" json:"fileName"`
	Provider        string         `gorm:"type:varchar(32);index:idx_extraction_records_provider" json:"provider"`
	ModelName       string         `gorm:"type:varchar(128)" json:"model"`
	TextMD5         string         `gorm:"type:char(32);index:idx_extraction_records_text_md5" json:"textMd5"`
	CandidateName   string         `gorm:"type:varchar(255)" json:"name"`
	SelfAssessment  string         `gorm:"type:text" json:"selfAssessment"`
	CompaniesJSON   datatypes.JSON `gorm:"type:json" json:"companies"`
	GraduateSchools datatypes.JSON `gorm:"type:json" json:"graduateSchools"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"createdAt"`
}

func (ExtractionRecord) TableName() string {
	return "extraction_records"
}

// NewExtractionRecord 从提取结果构造历史记录，RecordID 由调用方生成
func NewExtractionRecord(recordID, batchID, fileName, provider, modelName, textMD5 string, rec types.CandidateRecord) (*ExtractionRecord, error) {
	rec.Normalize()
	companies, err := json.Marshal(rec.Companies)
	if err != nil {
		return nil, fmt.Errorf("序列化公司经历失败: %w", err)
	}
	schools, err := json.Marshal(rec.GraduateSchools)
	if err != nil {
		return nil, fmt.Errorf("序列化毕业学校失败: %w", err)
	}
	return &ExtractionRecord{
		RecordID:        recordID,
		BatchID:         batchID,
		FileName:        fileName,
		Provider:        provider,
		ModelName:       modelName,
		TextMD5:         textMD5,
		CandidateName:   rec.Name,
		SelfAssessment:  rec.SelfAssessment,
		CompaniesJSON:   datatypes.JSON(companies),
		GraduateSchools: datatypes.JSON(schools),
	}, nil
}

// ToCandidate 转换回领域模型，JSON 字段损坏时对应数组为空
func (r *ExtractionRecord) ToCandidate() types.CandidateRecord {
	rec := types.CandidateRecord{
		Name:           r.CandidateName,
		SelfAssessment: r.SelfAssessment,
	}
	if len(r.CompaniesJSON) > 0 {
		_ = json.Unmarshal(r.CompaniesJSON, &rec.Companies)
	}
	if len(r.GraduateSchools) > 0 {
		_ = json.Unmarshal(r.GraduateSchools, &rec.GraduateSchools)
	}
	rec.Normalize()
	return rec
}
