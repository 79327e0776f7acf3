package config

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// StorageConfig selects where handlers read their input files from.
type StorageConfig struct {
	Mode      string `env:"STORAGE_MODE" envDefault:"local"`
	UploadDir string `env:"UPLOAD_DIR"   envDefault:"./data"`
	AWSRegion string `env:"AWS_REGION"   envDefault:"us-east-1"`
	AWSBucket string `env:"AWS_BUCKET"`
	S3Prefix  string `env:"AWS_S3_PREFIX"`
}

func (c StorageConfig) validate() error {
	switch c.Mode {
	case StorageLocal:
		return nil
	case StorageS3:
		if c.AWSBucket == "" {
			return invalid("AWS_BUCKET", "required when STORAGE_MODE=s3")
		}
		return nil
	default:
		return invalid("STORAGE_MODE", "must be local or s3")
	}
}
