package category

// builtinSchemas returns a fresh map of the built-in category schemas.
// Field slices are shared with the vocabulary tables and must not be modified.
func builtinSchemas() map[Category]Schema {
	list := []Schema{
		{
			Category: AppsSoftware,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "usage_frequency", Allowed: practiceFrequency},
				{Name: "subscription_type", Allowed: subscriptionType},
				{Name: "cost", Allowed: appCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 8,
		},
		{
			Category: Medications,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "frequency", Allowed: doseFrequency},
				{Name: "length_of_use", Allowed: lengthOfUse},
				{Name: "cost", Allowed: monthlyCost},
			},
			ArrayField:        "side_effects",
			ArrayAllowed:      sideEffects,
			VariantBearing:    true,
			MinEffectiveness:  3.8,
			MaxNewConnections: 5,
		},
		{
			Category: SupplementsVitamins,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "frequency", Allowed: doseFrequency},
				{Name: "length_of_use", Allowed: lengthOfUse},
				{Name: "cost", Allowed: monthlyCost},
			},
			ArrayField:        "side_effects",
			ArrayAllowed:      sideEffects,
			VariantBearing:    true,
			MinEffectiveness:  3.6,
			MaxNewConnections: 6,
		},
		{
			Category: NaturalRemedies,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "frequency", Allowed: doseFrequency},
				{Name: "length_of_use", Allowed: lengthOfUse},
				{Name: "cost", Allowed: monthlyCost},
			},
			ArrayField:        "side_effects",
			ArrayAllowed:      sideEffects,
			VariantBearing:    true,
			MinEffectiveness:  3.6,
			MaxNewConnections: 6,
		},
		{
			Category: BeautySkincare,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "skincare_frequency", Allowed: skincareFrequency},
				{Name: "length_of_use", Allowed: lengthOfUse},
				{Name: "cost", Allowed: oneTimeCost},
			},
			ArrayField:        "side_effects",
			ArrayAllowed:      sideEffects,
			VariantBearing:    true,
			MinEffectiveness:  3.5,
			MaxNewConnections: 6,
		},
		{
			Category: ExerciseMovement,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "frequency", Allowed: practiceFrequency},
				{Name: "time_commitment", Allowed: timeCommitment},
				{Name: "cost", Allowed: monthlyCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 10,
		},
		{
			Category: MeditationMindfulness,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "practice_frequency", Allowed: practiceFrequency},
				{Name: "time_commitment", Allowed: timeCommitment},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 10,
		},
		{
			Category: HabitsRoutines,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "practice_frequency", Allowed: practiceFrequency},
				{Name: "time_commitment", Allowed: timeCommitment},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 10,
		},
		{
			Category: HobbiesActivities,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "practice_frequency", Allowed: practiceFrequency},
				{Name: "startup_cost", Allowed: oneTimeCost},
				{Name: "ongoing_cost", Allowed: monthlyCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.4,
			MaxNewConnections: 8,
		},
		{
			Category: GroupsCommunities,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "meeting_frequency", Allowed: meetingFrequency},
				{Name: "group_size", Allowed: groupSize},
				{Name: "cost", Allowed: monthlyCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.4,
			MaxNewConnections: 8,
		},
		{
			Category: SupportGroups,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "meeting_frequency", Allowed: meetingFrequency},
				{Name: "format", Allowed: sessionFormat},
				{Name: "cost", Allowed: monthlyCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 6,
		},
		{
			Category: DietNutrition,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "cost_impact", Allowed: monthlyCost},
				{Name: "length_of_use", Allowed: lengthOfUse},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 8,
		},
		{
			Category: Sleep,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "practice_frequency", Allowed: practiceFrequency},
				{Name: "cost", Allowed: oneTimeCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 8,
		},
		{
			Category: ProductsDevices,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "usage_frequency", Allowed: practiceFrequency},
				{Name: "cost", Allowed: oneTimeCost},
				{Name: "product_type"},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 6,
		},
		{
			Category: BooksCourses,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "format", Allowed: bookFormat},
				{Name: "learning_difficulty", Allowed: difficulty},
				{Name: "cost", Allowed: oneTimeCost},
				{Name: "author"},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.4,
			MaxNewConnections: 8,
		},
		{
			Category: TherapistsCounselors,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "session_frequency", Allowed: sessionFrequency},
				{Name: "format", Allowed: sessionFormat},
				{Name: "cost", Allowed: sessionCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.6,
			MaxNewConnections: 6,
		},
		{
			Category: DoctorsSpecialists,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "wait_time", Allowed: waitTime},
				{Name: "session_frequency", Allowed: sessionFrequency},
				{Name: "cost", Allowed: sessionCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.7,
			MaxNewConnections: 4,
		},
		{
			Category: CoachesMentors,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "session_frequency", Allowed: sessionFrequency},
				{Name: "format", Allowed: sessionFormat},
				{Name: "cost", Allowed: sessionCost},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 6,
		},
		{
			Category: AlternativePractitioner,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "session_frequency", Allowed: sessionFrequency},
				{Name: "cost", Allowed: sessionCost},
			},
			ArrayField:        "side_effects",
			ArrayAllowed:      sideEffects,
			MinEffectiveness:  3.7,
			MaxNewConnections: 4,
		},
		{
			Category: ProfessionalServices,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "session_frequency", Allowed: sessionFrequency},
				{Name: "cost", Allowed: sessionCost},
				{Name: "service_type"},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 6,
		},
		{
			Category: MedicalProcedures,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "recovery_time", Allowed: recoveryTime},
				{Name: "wait_time", Allowed: waitTime},
				{Name: "cost", Allowed: oneTimeCost},
			},
			ArrayField:        "side_effects",
			ArrayAllowed:      sideEffects,
			MinEffectiveness:  3.8,
			MaxNewConnections: 3,
		},
		{
			Category: CrisisResources,
			Fields: []Field{
				{Name: "response_time", Allowed: responseTime},
				{Name: "format", Allowed: sessionFormat},
				{Name: "cost", Allowed: sessionCost},
			},
			MinEffectiveness:  3.5,
			MaxNewConnections: 4,
		},
		{
			Category: FinancialProducts,
			Fields: []Field{
				{Name: "time_to_results", Allowed: timeToResults},
				{Name: "cost", Allowed: monthlyCost},
				{Name: "provider"},
			},
			ArrayField:        "challenges",
			ArrayAllowed:      challenges,
			MinEffectiveness:  3.5,
			MaxNewConnections: 5,
		},
	}

	out := make(map[Category]Schema, len(list))
	for _, s := range list {
		out[s.Category] = s
	}
	return out
}
