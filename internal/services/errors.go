package services

import (
	apperrors "scadalab/internal/errors"
)

func seriesNotFound(datasetID, ref string) *apperrors.AppError {
	return apperrors.NewNotFoundError("series", ref).WithContext("dataset_id", datasetID)
}

func noSeries(datasetID string) *apperrors.AppError {
	return apperrors.NewAppValidationError("no_series", "no series selected").
		WithContext("dataset_id", datasetID)
}

// withDatasetSeries tags a core error with the dataset and series it failed on
func withDatasetSeries(err error, datasetID, series string) error {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr.WithContext("dataset_id", datasetID).WithContext("series", series)
	}
	return err
}
