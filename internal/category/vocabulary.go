package category

// Shared allowed-value vocabularies. Schemas reference these slices directly;
// they are never mutated after package initialization.
var (
	timeToResults = []string{
		"Immediately",
		"Within days",
		"1-2 weeks",
		"3-4 weeks",
		"1-2 months",
		"3-6 months",
		"6+ months",
	}

	lengthOfUse = []string{
		"Less than 1 month",
		"1-3 months",
		"3-6 months",
		"6-12 months",
		"1-2 years",
		"Over 2 years",
		"Still using",
	}

	doseFrequency = []string{
		"Once daily",
		"Twice daily",
		"Three times daily",
		"As needed",
		"Weekly",
		"Monthly",
	}

	skincareFrequency = []string{
		"Twice daily",
		"Once daily (AM)",
		"Once daily (PM)",
		"Every other day",
		"2-3 times per week",
		"Weekly",
		"As needed",
	}

	practiceFrequency = []string{
		"Multiple times daily",
		"Daily",
		"Few times a week",
		"Weekly",
		"As needed",
	}

	sessionFrequency = []string{
		"One-time only",
		"Weekly",
		"Every 2 weeks",
		"Monthly",
		"As needed",
	}

	meetingFrequency = []string{
		"Daily",
		"Weekly",
		"Every 2 weeks",
		"Monthly",
		"Irregular",
	}

	timeCommitment = []string{
		"Under 5 minutes",
		"5-10 minutes",
		"10-20 minutes",
		"20-30 minutes",
		"30-60 minutes",
		"Over 1 hour",
	}

	subscriptionType = []string{
		"Free version",
		"Monthly subscription",
		"Annual subscription",
		"One-time purchase",
	}

	monthlyCost = []string{
		"Free",
		"Under $10/month",
		"$10-$24.99/month",
		"$25-$49.99/month",
		"$50-$99.99/month",
		"$100-$199.99/month",
		"$200+/month",
	}

	appCost = []string{
		"Free",
		"Under $5/month",
		"$5-$9.99/month",
		"$10-$19.99/month",
		"$20-$49.99/month",
		"$50+/month",
	}

	oneTimeCost = []string{
		"Free",
		"Under $20",
		"$20-$49.99",
		"$50-$99.99",
		"$100-$249.99",
		"$250-$499.99",
		"$500+",
	}

	sessionCost = []string{
		"Free",
		"Covered by insurance",
		"Under $50/session",
		"$50-$99.99/session",
		"$100-$149.99/session",
		"$150-$249.99/session",
		"$250+/session",
	}

	sessionFormat = []string{
		"In-person",
		"Virtual/Online",
		"Phone",
		"Hybrid",
	}

	bookFormat = []string{
		"Physical book",
		"E-book",
		"Audiobook",
		"Online course",
		"Video series",
		"Workbook",
	}

	difficulty = []string{
		"Beginner",
		"Intermediate",
		"Advanced",
	}

	waitTime = []string{
		"Same day",
		"Within a week",
		"1-2 weeks",
		"2-4 weeks",
		"1-3 months",
		"3+ months",
	}

	groupSize = []string{
		"Small (under 10)",
		"Medium (10-25)",
		"Large (over 25)",
		"Varies",
	}

	responseTime = []string{
		"Immediate",
		"Within hours",
		"Within a day",
		"Within a week",
	}

	recoveryTime = []string{
		"None",
		"1-2 days",
		"3-7 days",
		"1-4 weeks",
		"1-3 months",
		"3+ months",
	}

	sideEffects = []string{
		"None",
		"Nausea",
		"Headache",
		"Drowsiness",
		"Insomnia",
		"Dizziness",
		"Weight changes",
		"Digestive issues",
		"Dry mouth",
		"Skin irritation",
		"Fatigue",
		"Other",
	}

	challenges = []string{
		"None",
		"Hard to stay consistent",
		"Time commitment",
		"Cost",
		"Hard to get started",
		"Motivation",
		"Finding the right fit",
		"Other",
	}
)
