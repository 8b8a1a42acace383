package matcher

import (
	"math"
	"testing"

	"bibkeep/internal/contenthash"
	"bibkeep/internal/refstore"
)

func rec(seed, filename, title string, authors ...string) refstore.Record {
	return refstore.Record{
		ContentHash: contenthash.Bytes([]byte(seed)),
		Authors:     authors,
		Title:       title,
		Filename:    filename,
		Status:      refstore.StatusReference,
	}
}

func TestFindSimilarEditionVariant(t *testing.T) {
	records := []refstore.Record{
		rec("b", "Alpaydin_Introduction_Machine_Learning_2nd_Edition.pdf", "Introduction to Machine Learning, 2nd Edition", "Ethem Alpaydin"),
		rec("a", "Alpaydin_Introduction_Machine_Learning.pdf", "Introduction to Machine Learning", "Ethem Alpaydin"),
		rec("c", "Goodfellow_Deep_Learning.pdf", "Deep Learning", "Ian Goodfellow"),
		rec("d", "Goodfellow_Cooking_Recipes.pdf", "Cooking Recipes", "Ian Goodfellow"),
	}
	pairs := FindSimilar(records, DefaultThreshold)
	if len(pairs) != 1 {
		t.Fatalf("expected one pair, got %d: %+v", len(pairs), pairs)
	}
	pair := pairs[0]
	if pair.A.Filename != "Alpaydin_Introduction_Machine_Learning.pdf" {
		t.Fatalf("pair not ordered by filename: %s / %s", pair.A.Filename, pair.B.Filename)
	}
	if pair.Score < 0.8 || pair.Score > 0.85 {
		t.Fatalf("score = %.3f, want about 0.83", pair.Score)
	}
}

func TestFindSimilarThresholdBoundary(t *testing.T) {
	records := []refstore.Record{
		rec("a", "Hastie_et_al_Elements_Statistical_Learning.pdf", "The Elements of Statistical Learning", "Trevor Hastie", "Robert Tibshirani", "Jerome Friedman"),
		rec("b", "Hastie_Tibshirani_Elements_Statistical_Learning_Data_Mining.pdf",
			"Elements of Statistical Learning: Data Mining, Inference, and Prediction", "Trevor Hastie", "Robert Tibshirani"),
	}
	score := Score(records[0].Title, records[1].Title)
	if score < 0.6 || score >= DefaultThreshold {
		t.Fatalf("fixture score %.3f must sit between 0.6 and the default threshold", score)
	}
	if pairs := FindSimilar(records, DefaultThreshold); len(pairs) != 0 {
		t.Fatalf("expected no pair at default threshold, got %+v", pairs)
	}
	pairs := FindSimilar(records, 0.6)
	if len(pairs) != 1 {
		t.Fatalf("expected a pair at 0.6, got %d", len(pairs))
	}
	if math.Abs(pairs[0].Score-score) > 1e-9 {
		t.Fatalf("pair score %.4f differs from Score %.4f", pairs[0].Score, score)
	}
}

func TestFindSimilarRequiresAuthorOverlap(t *testing.T) {
	records := []refstore.Record{
		rec("a", "Bishop_Pattern_Recognition.pdf", "Pattern Recognition", "Christopher Bishop"),
		rec("b", "Duda_Pattern_Recognition.pdf", "Pattern Recognition", "Richard Duda"),
		rec("c", "Unknown_Pattern_Recognition.pdf", "Pattern Recognition", "Unknown"),
		rec("d", "Unknown_Pattern_Recognition_Notes.pdf", "Pattern Recognition Notes", "Unknown"),
	}
	pairs := FindSimilar(records, DefaultThreshold)
	if len(pairs) != 1 {
		t.Fatalf("expected only the unknown-author pair, got %+v", pairs)
	}
	if pairs[0].A.Filename != "Unknown_Pattern_Recognition.pdf" || pairs[0].B.Filename != "Unknown_Pattern_Recognition_Notes.pdf" {
		t.Fatalf("unexpected pair: %s / %s", pairs[0].A.Filename, pairs[0].B.Filename)
	}
}

func TestFindSimilarSkipsQuarantineAndExactCopies(t *testing.T) {
	quarantined := rec("q", "Berk_Statistical_Learning_Regression.pdf", "Statistical Learning from a Regression Perspective", "Richard A. Berk")
	quarantined.Status = refstore.StatusQuarantine
	copyA := rec("same", "Berk_Statistical_Learning_Regression_Perspective.pdf", "Statistical Learning from a Regression Perspective", "Richard A. Berk")
	copyB := copyA
	copyB.Filename = "Berk_Statistical_Learning_Regression_Perspective_2.pdf"

	if pairs := FindSimilar([]refstore.Record{quarantined, copyA, copyB}, DefaultThreshold); len(pairs) != 0 {
		t.Fatalf("expected no pairs, got %+v", pairs)
	}
}

func TestFindSimilarOrdersByScore(t *testing.T) {
	records := []refstore.Record{
		rec("a", "Smith_Bayesian_Data_Analysis.pdf", "Bayesian Data Analysis", "John Smith"),
		rec("b", "Smith_Bayesian_Data_Analysis_Notes.pdf", "Bayesian Data Analysis Notes", "John Smith"),
		rec("c", "Smith_Bayesian_Data_Analysis_Copy.pdf", "Bayesian Data Analysis", "John Smith"),
	}
	pairs := FindSimilar(records, DefaultThreshold)
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(pairs))
	}
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].Score < pairs[i].Score {
			t.Fatalf("pairs not sorted by score: %+v", pairs)
		}
	}
	if pairs[0].Score != 1 {
		t.Fatalf("identical titles should score 1, got %.3f", pairs[0].Score)
	}
}

func TestExactGroups(t *testing.T) {
	a := rec("x", "A.pdf", "A", "Unknown")
	b := rec("y", "B.pdf", "B", "Unknown")
	c := a
	c.Filename = "A_copy.pdf"
	d := a
	d.Filename = "A_copy2.pdf"

	groups := ExactGroups([]refstore.Record{a, b, c, d})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Records) != 3 || groups[0].Records[0].Filename != "A.pdf" {
		t.Fatalf("unexpected group: %+v", groups[0])
	}
	if len(ExactGroups([]refstore.Record{a, b})) != 0 {
		t.Fatal("distinct hashes must not group")
	}
}
