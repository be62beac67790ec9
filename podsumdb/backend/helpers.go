package backend

import (
	"github.com/google/uuid"
)

// Key layout of the download store. All derived artifacts for a show hang off
// its uuid so a single prefix listing covers the show.
//
//	show-daily/<uuid>/<uuid>-<YYYY-MM-DD>.tsv            raw downloads (upstream)
//	summaries/show/<uuid>/<uuid>-<period>.summary.json   daily/monthly/overall summaries
//	audiences/show/<uuid>/<uuid>-<date>.all.audience.txt daily audience lines
//	audiences/show/<uuid>/<uuid>-<month>.<part>.audience.txt
//	audience-summaries/show/<uuid>/<uuid>-<month>.<part>.audience-summary.json

// OverallPeriod is the period label of the all-time summary.
const OverallPeriod = "overall"

// AllPart is the part label of an unpartitioned audience blob.
const AllPart = "all"

func ShowDailyKeyPath(show uuid.UUID) KeyPath {
	return KeyPath{"show-daily", show.String()}
}

func SummaryKeyPath(show uuid.UUID) KeyPath {
	return KeyPath{"summaries", "show", show.String()}
}

func AudienceKeyPath(show uuid.UUID) KeyPath {
	return KeyPath{"audiences", "show", show.String()}
}

func AudienceSummaryKeyPath(show uuid.UUID) KeyPath {
	return KeyPath{"audience-summaries", "show", show.String()}
}

// DailyFileName is the canonical name of a raw show-daily object. Listings may
// surface other suffixes (for example gzipped dailies); consumers key off the
// <uuid>-<date> prefix only.
func DailyFileName(show uuid.UUID, date string) string {
	return show.String() + "-" + date + ".tsv"
}

func SummaryFileName(show uuid.UUID, period string) string {
	return show.String() + "-" + period + ".summary.json"
}

func OverallSummaryFileName(show uuid.UUID) string {
	return SummaryFileName(show, OverallPeriod)
}

func DailyAudienceFileName(show uuid.UUID, date string) string {
	return show.String() + "-" + date + "." + AllPart + ".audience.txt"
}

func MonthlyAudienceFileName(show uuid.UUID, month, part string) string {
	return show.String() + "-" + month + "." + part + ".audience.txt"
}

func MonthlyAudienceSummaryFileName(show uuid.UUID, month, part string) string {
	return show.String() + "-" + month + "." + part + ".audience-summary.json"
}
