package model

import (
	"errors"

	"github.com/Brownie44l1/fire-detect/internal/preprocess"
)

var (
	ErrModelLoad          = errors.New("model load failed")
	ErrImageDecode        = preprocess.ErrImageDecode
	ErrShapeMismatch      = errors.New("input shape mismatch")
	ErrLabelCountMismatch = errors.New("class label count mismatch")
	ErrInvalidMetadata    = errors.New("invalid model metadata")
	ErrNonFiniteScore     = errors.New("model returned a non-finite score")
)
